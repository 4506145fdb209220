package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/stats"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ClientLimiter is the token bucket of one client IP
type ClientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Tokens returns the whole tokens currently available
func (c *ClientLimiter) Tokens() int {
	return int(math.Floor(c.limiter.Tokens()))
}

// IPRateLimiter keeps one token bucket per client IP
type IPRateLimiter struct {
	ips   map[string]*ClientLimiter
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	now   func() time.Time
}

// NewIPRateLimiter creates a limiter allowing r requests per second with the given burst
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*ClientLimiter),
		rate:  r,
		burst: burst,
		now:   time.Now,
	}
}

// Limit returns the burst limit
func (i *IPRateLimiter) Limit() int {
	return i.burst
}

// GetLimiter returns the bucket for ip, creating it on first use
func (i *IPRateLimiter) GetLimiter(ip string) *ClientLimiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, exists := i.ips[ip]
	if !exists {
		c = &ClientLimiter{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.ips[ip] = c
	}
	c.lastSeen = i.now()
	return c
}

// Prune drops buckets not used within idle and returns how many were removed
func (i *IPRateLimiter) Prune(idle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-idle)
	removed := 0
	for ip, c := range i.ips {
		if c.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked clients
func (i *IPRateLimiter) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

// Middleware rejects requests over the per-IP limit with 429
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		c := i.GetLimiter(ip)

		if !c.limiter.Allow() {
			stats.Get().RecordRateLimit(false)
			log.Warnf("%s IP %s exceeded rate limit", logcolors.LogRateLimit, ip)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", i.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		stats.Get().RecordRateLimit(true)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", i.burst))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", c.Tokens()))
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
