package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/utils"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "blobs"
	// blobExt is kept for every blob regardless of its real type so existing
	// cache directories stay readable; the real type lives in the index.
	blobExt = ".jpg"
)

var ErrNotFound = errors.New("cache entry not found")

// Meta is the sidecar record stored in the index for every blob.
type Meta struct {
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Entry is a cached blob together with its sidecar record.
type Entry struct {
	Meta
	Key  string
	Data []byte
}

// BlobCache is a flat, content-addressed directory of blobs keyed by the
// digest of their source URL, with a BoltDB index holding per-blob metadata.
// Entries are never invalidated or evicted.
type BlobCache struct {
	dir       string
	indexPath string
	db        *bolt.DB
	memIndex  sync.Map
}

// Key derives the cache key for a source URL: the hex MD5 digest of the raw string.
func Key(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// NewBlobCache opens (or creates) a blob cache in dir with its index at indexPath.
func NewBlobCache(dir, indexPath string) (*BlobCache, error) {
	created, err := utils.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if created {
		log.Infof("%s Created cache directory at: %s", logcolors.LogCacheInit, dir)
	}

	if _, err := utils.EnsureParentDir(indexPath); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := bolt.Open(indexPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index bucket: %w", err)
	}

	c := &BlobCache{
		dir:       dir,
		indexPath: indexPath,
		db:        db,
	}

	if err := c.loadIndex(); err != nil {
		log.Warnf("%s Failed to preload cache index: %v", logcolors.LogCache, err)
	}

	log.Infof("%s Blob cache initialized at %s (index: %s)", logcolors.LogCache, dir, indexPath)
	return c, nil
}

// loadIndex copies every sidecar record into memory
func (c *BlobCache) loadIndex() error {
	count := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var meta Meta
			if err := json.Unmarshal(v, &meta); err != nil {
				log.Warnf("%s Failed to unmarshal index entry for key %s: %v", logcolors.LogCache, string(k), err)
				return nil
			}
			c.memIndex.Store(string(k), meta)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Infof("%s Loaded %d index entries", logcolors.LogCache, count)
	return nil
}

// Dir returns the blob directory.
func (c *BlobCache) Dir() string {
	return c.dir
}

// Path returns the blob file path for a source URL.
func (c *BlobCache) Path(url string) string {
	return filepath.Join(c.dir, Key(url)+blobExt)
}

// Has reports whether a blob exists for url.
func (c *BlobCache) Has(url string) bool {
	info, err := os.Stat(c.Path(url))
	return err == nil && !info.IsDir()
}

// Get reads the blob for url. Blobs written without an index record (or by an
// older layout) are returned with the default image content type.
func (c *BlobCache) Get(url string) (*Entry, error) {
	key := Key(url)
	data, err := os.ReadFile(filepath.Join(c.dir, key+blobExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}

	meta, ok := c.lookupMeta(key)
	if !ok {
		meta = Meta{URL: url, Size: int64(len(data))}
	}
	if meta.ContentType == "" {
		meta.ContentType = utils.DefaultImageContentType
	}

	return &Entry{Meta: meta, Key: key, Data: data}, nil
}

func (c *BlobCache) lookupMeta(key string) (Meta, bool) {
	if v, ok := c.memIndex.Load(key); ok {
		return v.(Meta), true
	}

	var meta Meta
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return Meta{}, false
	}

	c.memIndex.Store(key, meta)
	return meta, true
}

// Put stores data for url. The blob is written to a temporary file and renamed
// into place so readers never observe a partial blob; concurrent writers of the
// same key simply overwrite each other.
func (c *BlobCache) Put(url string, data []byte, contentType string) error {
	key := Key(url)

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close blob %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(c.dir, key+blobExt)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move blob %s into place: %w", key, err)
	}

	meta := Meta{
		URL:         url,
		ContentType: contentType,
		Size:        int64(len(data)),
		CachedAt:    time.Now(),
	}
	c.memIndex.Store(key, meta)

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), encoded)
	})
}

// Range iterates over all indexed entries
func (c *BlobCache) Range(fn func(key string, meta Meta) bool) {
	c.memIndex.Range(func(k, v interface{}) bool {
		return fn(k.(string), v.(Meta))
	})
}

// Stats counts the blob files on disk and their total size.
func (c *BlobCache) Stats() (numBlobs int, sizeInKB int) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		log.Warnf("%s Failed to read cache directory: %v", logcolors.LogCache, err)
		return 0, 0
	}

	var size int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		numBlobs++
		size += info.Size()
	}
	return numBlobs, int(size / 1024)
}

// Close closes the index database
func (c *BlobCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
