package stats

import (
	"sync/atomic"
	"time"
)

// Stats holds server counters. All fields are safe for concurrent use.
type Stats struct {
	StartTime time.Time

	// Requests by endpoint
	TotalRequests          atomic.Int64
	ProxyRequests          atomic.Int64
	ImageRequests          atomic.Int64
	ImagesListRequests     atomic.Int64
	DisplayRequests        atomic.Int64
	CacheRequests          atomic.Int64
	StatsRequests          atomic.Int64
	HealthRequests         atomic.Int64
	CircuitBreakerRequests atomic.Int64
	OtherRequests          atomic.Int64

	// Image cache
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	CacheWriteErrors atomic.Int64

	// Image origin and fallbacks
	UpstreamErrors    atomic.Int64
	FallbackDefault   atomic.Int64
	FallbackDirectory atomic.Int64
	FallbackFailed    atomic.Int64

	// Metadata proxy
	ArtUpgrades atomic.Int64

	// Now-playing poller
	PollerTicks  atomic.Int64
	PollerErrors atomic.Int64

	// Rate limiting
	RateLimitAllowed  atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response times in microseconds
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	imageResponseTime  atomic.Int64
	imageResponseCount atomic.Int64
}

const noMinResponseTime = int64(^uint64(0) >> 1)

var global = newStats()

func newStats() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(noMinResponseTime)
	return s
}

// New returns an empty, unshared stats instance
func New() *Stats {
	return newStats()
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/proxy":
		s.ProxyRequests.Add(1)
	case "/image-proxy":
		s.ImageRequests.Add(1)
	case "/images-list":
		s.ImagesListRequests.Add(1)
	case "/display", "/display/layout", "/display/skip":
		s.DisplayRequests.Add(1)
	case "/cache":
		s.CacheRequests.Add(1)
	case "/stats":
		s.StatsRequests.Add(1)
	case "/health":
		s.HealthRequests.Add(1)
	case "/circuit-breaker", "/circuit-breaker/reset":
		s.CircuitBreakerRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordCacheWriteError records a blob that was served but could not be persisted
func (s *Stats) RecordCacheWriteError() {
	s.CacheWriteErrors.Add(1)
}

// RecordUpstreamError records a failed image origin fetch
func (s *Stats) RecordUpstreamError() {
	s.UpstreamErrors.Add(1)
}

// RecordFallback records which fallback served an image: "default",
// "directory", or anything else for a failed chain.
func (s *Stats) RecordFallback(source string) {
	switch source {
	case "default":
		s.FallbackDefault.Add(1)
	case "directory":
		s.FallbackDirectory.Add(1)
	default:
		s.FallbackFailed.Add(1)
	}
}

func (s *Stats) RecordArtUpgrade() {
	s.ArtUpgrades.Add(1)
}

// RecordPollerTick records one completed poll and whether it failed
func (s *Stats) RecordPollerTick(failed bool) {
	s.PollerTicks.Add(1)
	if failed {
		s.PollerErrors.Add(1)
	}
}

// RecordRateLimit records whether a request passed the limiter
func (s *Stats) RecordRateLimit(allowed bool) {
	if allowed {
		s.RateLimitAllowed.Add(1)
	} else {
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if endpoint == "/image-proxy" {
		s.imageResponseTime.Add(us)
		s.imageResponseCount.Add(1)
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the image cache hit rate as a percentage
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	total := hits + s.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == noMinResponseTime {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgImageResponseTime returns the average /image-proxy response time
func (s *Stats) AvgImageResponseTime() time.Duration {
	count := s.imageResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.imageResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":           s.TotalRequests.Load(),
			"proxy":           s.ProxyRequests.Load(),
			"image_proxy":     s.ImageRequests.Load(),
			"images_list":     s.ImagesListRequests.Load(),
			"display":         s.DisplayRequests.Load(),
			"cache":           s.CacheRequests.Load(),
			"stats":           s.StatsRequests.Load(),
			"health":          s.HealthRequests.Load(),
			"circuit_breaker": s.CircuitBreakerRequests.Load(),
			"other":           s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":         s.CacheHits.Load(),
			"misses":       s.CacheMisses.Load(),
			"write_errors": s.CacheWriteErrors.Load(),
			"hit_rate":     s.CacheHitRate(),
		},
		"images": map[string]interface{}{
			"upstream_errors":    s.UpstreamErrors.Load(),
			"fallback_default":   s.FallbackDefault.Load(),
			"fallback_directory": s.FallbackDirectory.Load(),
			"fallback_failed":    s.FallbackFailed.Load(),
		},
		"metadata": map[string]interface{}{
			"art_upgrades": s.ArtUpgrades.Load(),
		},
		"poller": map[string]interface{}{
			"ticks":  s.PollerTicks.Load(),
			"errors": s.PollerErrors.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"allowed":  s.RateLimitAllowed.Load(),
			"exceeded": s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":       s.AvgResponseTime().String(),
			"min":       s.MinResponseTime().String(),
			"max":       s.MaxResponseTime().String(),
			"avg_image": s.AvgImageResponseTime().String(),
		},
	}
}
