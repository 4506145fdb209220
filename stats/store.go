package stats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/utils"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store persists counters to a dedicated BoltDB file so they survive restarts
type Store struct {
	db       *bolt.DB
	dbPath   string
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats is the on-disk form of Stats
type PersistedStats struct {
	TotalRequests          int64 `json:"total_requests"`
	ProxyRequests          int64 `json:"proxy_requests"`
	ImageRequests          int64 `json:"image_requests"`
	ImagesListRequests     int64 `json:"images_list_requests"`
	DisplayRequests        int64 `json:"display_requests"`
	CacheRequests          int64 `json:"cache_requests"`
	StatsRequests          int64 `json:"stats_requests"`
	HealthRequests         int64 `json:"health_requests"`
	CircuitBreakerRequests int64 `json:"circuit_breaker_requests"`
	OtherRequests          int64 `json:"other_requests"`
	CacheHits              int64 `json:"cache_hits"`
	CacheMisses            int64 `json:"cache_misses"`
	CacheWriteErrors       int64 `json:"cache_write_errors"`
	UpstreamErrors         int64 `json:"upstream_errors"`
	FallbackDefault        int64 `json:"fallback_default"`
	FallbackDirectory      int64 `json:"fallback_directory"`
	FallbackFailed         int64 `json:"fallback_failed"`
	ArtUpgrades            int64 `json:"art_upgrades"`
	PollerTicks            int64 `json:"poller_ticks"`
	PollerErrors           int64 `json:"poller_errors"`
	RateLimitAllowed       int64 `json:"rate_limit_allowed"`
	RateLimitExceeded      int64 `json:"rate_limit_exceeded"`
	Status2xx              int64 `json:"status_2xx"`
	Status4xx              int64 `json:"status_4xx"`
	Status5xx              int64 `json:"status_5xx"`

	TotalResponseTime  int64 `json:"total_response_time"`
	ResponseCount      int64 `json:"response_count"`
	MinResponseTime    int64 `json:"min_response_time"`
	MaxResponseTime    int64 `json:"max_response_time"`
	ImageResponseTime  int64 `json:"image_response_time"`
	ImageResponseCount int64 `json:"image_response_count"`

	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore opens (or creates) the stats database at dbPath
func NewStore(dbPath string) (*Store, error) {
	return newStore(dbPath, Get())
}

func newStore(dbPath string, target *Stats) (*Store, error) {
	if _, err := utils.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{
		db:       db,
		dbPath:   dbPath,
		stats:    target,
		stopChan: make(chan struct{}),
	}, nil
}

// Load applies persisted counters to the live stats
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted PersistedStats
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &persisted)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		return nil
	}

	st := s.stats
	st.TotalRequests.Store(persisted.TotalRequests)
	st.ProxyRequests.Store(persisted.ProxyRequests)
	st.ImageRequests.Store(persisted.ImageRequests)
	st.ImagesListRequests.Store(persisted.ImagesListRequests)
	st.DisplayRequests.Store(persisted.DisplayRequests)
	st.CacheRequests.Store(persisted.CacheRequests)
	st.StatsRequests.Store(persisted.StatsRequests)
	st.HealthRequests.Store(persisted.HealthRequests)
	st.CircuitBreakerRequests.Store(persisted.CircuitBreakerRequests)
	st.OtherRequests.Store(persisted.OtherRequests)
	st.CacheHits.Store(persisted.CacheHits)
	st.CacheMisses.Store(persisted.CacheMisses)
	st.CacheWriteErrors.Store(persisted.CacheWriteErrors)
	st.UpstreamErrors.Store(persisted.UpstreamErrors)
	st.FallbackDefault.Store(persisted.FallbackDefault)
	st.FallbackDirectory.Store(persisted.FallbackDirectory)
	st.FallbackFailed.Store(persisted.FallbackFailed)
	st.ArtUpgrades.Store(persisted.ArtUpgrades)
	st.PollerTicks.Store(persisted.PollerTicks)
	st.PollerErrors.Store(persisted.PollerErrors)
	st.RateLimitAllowed.Store(persisted.RateLimitAllowed)
	st.RateLimitExceeded.Store(persisted.RateLimitExceeded)
	st.Status2xx.Store(persisted.Status2xx)
	st.Status4xx.Store(persisted.Status4xx)
	st.Status5xx.Store(persisted.Status5xx)
	st.totalResponseTime.Store(persisted.TotalResponseTime)
	st.responseCount.Store(persisted.ResponseCount)
	st.imageResponseTime.Store(persisted.ImageResponseTime)
	st.imageResponseCount.Store(persisted.ImageResponseCount)

	if persisted.MinResponseTime > 0 && persisted.MinResponseTime < noMinResponseTime {
		st.minResponseTime.Store(persisted.MinResponseTime)
	}
	if persisted.MaxResponseTime > 0 {
		st.maxResponseTime.Store(persisted.MaxResponseTime)
	}
	if !persisted.FirstStarted.IsZero() {
		st.StartTime = persisted.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, first started: %s)",
		logcolors.LogStats, persisted.TotalRequests, persisted.FirstStarted.Format(time.RFC3339))
	return nil
}

// Save persists the current counters
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	persisted := PersistedStats{
		TotalRequests:          st.TotalRequests.Load(),
		ProxyRequests:          st.ProxyRequests.Load(),
		ImageRequests:          st.ImageRequests.Load(),
		ImagesListRequests:     st.ImagesListRequests.Load(),
		DisplayRequests:        st.DisplayRequests.Load(),
		CacheRequests:          st.CacheRequests.Load(),
		StatsRequests:          st.StatsRequests.Load(),
		HealthRequests:         st.HealthRequests.Load(),
		CircuitBreakerRequests: st.CircuitBreakerRequests.Load(),
		OtherRequests:          st.OtherRequests.Load(),
		CacheHits:              st.CacheHits.Load(),
		CacheMisses:            st.CacheMisses.Load(),
		CacheWriteErrors:       st.CacheWriteErrors.Load(),
		UpstreamErrors:         st.UpstreamErrors.Load(),
		FallbackDefault:        st.FallbackDefault.Load(),
		FallbackDirectory:      st.FallbackDirectory.Load(),
		FallbackFailed:         st.FallbackFailed.Load(),
		ArtUpgrades:            st.ArtUpgrades.Load(),
		PollerTicks:            st.PollerTicks.Load(),
		PollerErrors:           st.PollerErrors.Load(),
		RateLimitAllowed:       st.RateLimitAllowed.Load(),
		RateLimitExceeded:      st.RateLimitExceeded.Load(),
		Status2xx:              st.Status2xx.Load(),
		Status4xx:              st.Status4xx.Load(),
		Status5xx:              st.Status5xx.Load(),
		TotalResponseTime:      st.totalResponseTime.Load(),
		ResponseCount:          st.responseCount.Load(),
		MinResponseTime:        st.minResponseTime.Load(),
		MaxResponseTime:        st.maxResponseTime.Load(),
		ImageResponseTime:      st.imageResponseTime.Load(),
		ImageResponseCount:     st.imageResponseCount.Load(),
		LastSaved:              time.Now(),
		FirstStarted:           st.StartTime,
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return fmt.Errorf("stats bucket not found")
		}
		return b.Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// StartAutoSave saves the counters every interval until Close
func (s *Store) StartAutoSave(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close stops auto-save, writes a final snapshot and closes the database
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	if err := s.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}

	return s.db.Close()
}
