package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"nowplaying-proxy-go/cache"
	"nowplaying-proxy-go/circuitbreaker"
	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/services/upstream"
	"nowplaying-proxy-go/stats"
	"nowplaying-proxy-go/utils"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingURL = errors.New("missing image URL parameter")
	ErrNoFallback = errors.New("error fetching image")
)

// Source tells where a served image came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceUpstream  Source = "upstream"
	SourceDefault   Source = "default"
	SourceDirectory Source = "directory"
)

// Image is what the proxy hands back to the HTTP layer.
type Image struct {
	Data        []byte
	ContentType string
	Source      Source
}

// Fetcher is the upstream contract the proxy needs.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string, headers map[string]string) (*upstream.Result, error)
}

// BlobStore is the cache contract the proxy needs.
type BlobStore interface {
	Has(url string) bool
	Get(url string) (*cache.Entry, error)
	Put(url string, data []byte, contentType string) error
}

// Config holds the fallback locations.
type Config struct {
	ImagesDir    string // directory scanned for fallback images
	DefaultImage string // file name inside ImagesDir tried first
}

// Proxy serves album art from the cache, then the origin, then local fallbacks.
type Proxy struct {
	store        BlobStore
	fetcher      Fetcher
	breaker      *circuitbreaker.CircuitBreaker
	imagesDir    string
	defaultImage string
	group        singleflight.Group
}

// New creates an image proxy. breaker may be nil.
func New(store BlobStore, fetcher Fetcher, breaker *circuitbreaker.CircuitBreaker, cfg Config) *Proxy {
	return &Proxy{
		store:        store,
		fetcher:      fetcher,
		breaker:      breaker,
		imagesDir:    cfg.ImagesDir,
		defaultImage: cfg.DefaultImage,
	}
}

// Serve resolves url to image bytes. It only fails with ErrMissingURL or,
// when the origin and every local fallback are unavailable, ErrNoFallback.
func (p *Proxy) Serve(ctx context.Context, url string) (*Image, error) {
	if url == "" {
		return nil, ErrMissingURL
	}

	if p.store.Has(url) {
		entry, err := p.store.Get(url)
		if err == nil {
			stats.Get().RecordCacheHit()
			log.Infof("%s Serving cached image for: %s", logcolors.LogCacheHit, url)
			return &Image{Data: entry.Data, ContentType: entry.ContentType, Source: SourceCache}, nil
		}
		log.Warnf("%s Cached blob unreadable for %s, refetching: %v", logcolors.LogCache, url, err)
	}
	stats.Get().RecordCacheMiss()

	img, err := p.fetch(ctx, url)
	if err == nil {
		return img, nil
	}

	stats.Get().RecordUpstreamError()
	log.Warnf("%s Error fetching image %s: %v", logcolors.LogImageProxy, url, err)

	return p.fallback()
}

// fetch coalesces concurrent misses for the same URL into one origin request.
func (p *Proxy) fetch(ctx context.Context, url string) (*Image, error) {
	v, err, shared := p.group.Do(cache.Key(url), func() (interface{}, error) {
		// the shared fetch must not die with whichever client asked first
		return p.fetchAndStore(context.WithoutCancel(ctx), url)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("%s Shared in-flight fetch for: %s", logcolors.LogImageProxy, url)
	}
	return v.(*Image), nil
}

func (p *Proxy) fetchAndStore(ctx context.Context, url string) (*Image, error) {
	if p.breaker != nil && !p.breaker.Allow() {
		return nil, fmt.Errorf("%w (retry in %v)", circuitbreaker.ErrCircuitOpen, p.breaker.TimeUntilRetry())
	}

	log.Infof("%s Fetching image from: %s", logcolors.LogImageProxy, url)
	res, err := p.fetcher.FetchBytes(ctx, url, upstream.BrowserImageHeaders)
	p.recordOutcome(err)
	if err != nil {
		return nil, err
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = utils.DefaultImageContentType
	}

	if err := p.store.Put(url, res.Body, contentType); err != nil {
		stats.Get().RecordCacheWriteError()
		log.Errorf("%s Error caching image %s: %v", logcolors.LogCache, url, err)
	} else {
		log.Infof("%s Cached image for: %s", logcolors.LogCache, url)
	}

	return &Image{Data: res.Body, ContentType: contentType, Source: SourceUpstream}, nil
}

// recordOutcome feeds the breaker. A 4xx means the origin is up and simply
// has no such image, so it does not count against it.
func (p *Proxy) recordOutcome(err error) {
	if p.breaker == nil {
		return
	}
	if err == nil {
		p.breaker.RecordSuccess()
		return
	}
	var fe *upstream.FetchError
	if errors.As(err, &fe) && fe.Kind == upstream.KindStatus && fe.StatusCode < http.StatusInternalServerError {
		p.breaker.RecordSuccess()
		return
	}
	p.breaker.RecordFailure()
}

// fallback tries the configured default image, then the first image found in
// the images directory.
func (p *Proxy) fallback() (*Image, error) {
	if p.defaultImage != "" {
		defaultPath := filepath.Join(p.imagesDir, p.defaultImage)
		data, err := os.ReadFile(defaultPath)
		if err == nil {
			stats.Get().RecordFallback(string(SourceDefault))
			log.Warnf("%s Serving default image as fallback: %s", logcolors.LogFallback, defaultPath)
			return &Image{Data: data, ContentType: utils.ContentTypeForFile(defaultPath), Source: SourceDefault}, nil
		}
		if !os.IsNotExist(err) {
			log.Warnf("%s Default image unreadable: %v", logcolors.LogFallback, err)
		}
	}

	files, err := utils.ListImages(p.imagesDir, utils.FallbackImageExtensions)
	if err != nil {
		log.Errorf("%s Error scanning images directory %s: %v", logcolors.LogFallback, p.imagesDir, err)
		stats.Get().RecordFallback("none")
		return nil, ErrNoFallback
	}
	if len(files) == 0 {
		log.Errorf("%s No fallback image available in %s", logcolors.LogFallback, p.imagesDir)
		stats.Get().RecordFallback("none")
		return nil, ErrNoFallback
	}

	altPath := filepath.Join(p.imagesDir, files[0])
	data, err := os.ReadFile(altPath)
	if err != nil {
		log.Errorf("%s Error serving fallback image %s: %v", logcolors.LogFallback, altPath, err)
		stats.Get().RecordFallback("none")
		return nil, ErrNoFallback
	}

	stats.Get().RecordFallback(string(SourceDirectory))
	log.Warnf("%s Serving alternative image: %s", logcolors.LogFallback, altPath)
	return &Image{Data: data, ContentType: utils.ContentTypeForFile(altPath), Source: SourceDirectory}, nil
}
