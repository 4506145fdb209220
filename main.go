package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nowplaying-proxy-go/cache"
	"nowplaying-proxy-go/circuitbreaker"
	"nowplaying-proxy-go/config"
	"nowplaying-proxy-go/display"
	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/middleware"
	"nowplaying-proxy-go/poller"
	"nowplaying-proxy-go/services/imageproxy"
	"nowplaying-proxy-go/services/metaproxy"
	"nowplaying-proxy-go/services/upstream"
	"nowplaying-proxy-go/stats"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var conf = config.Get()

var (
	blobCache      *cache.BlobCache
	upstreamClient *upstream.Client
	imageBreaker   *circuitbreaker.CircuitBreaker
	imageProxy     *imageproxy.Proxy
	metaProxy      *metaproxy.Proxy
	nowPlaying     *poller.Poller // nil when FF_POLLER is off
	rotator        *display.Rotator
	layoutSwitch   display.LayoutSwitch
	statsStore     *stats.Store
)

const (
	shutdownTimeout     = 10 * time.Second
	limiterPruneEvery   = 5 * time.Minute
	limiterIdleDuration = 10 * time.Minute
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel) // Set to InfoLevel (change to DebugLevel for detailed logs)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrapDirectories()

	if err := setupComponents(); err != nil {
		log.Fatalf("%s Failed to start: %v", logcolors.LogServer, err)
	}
	defer blobCache.Close()

	setupStats()
	defer func() {
		if statsStore != nil {
			if err := statsStore.Close(); err != nil {
				log.Errorf("%s Error closing stats store: %v", logcolors.LogStats, err)
			}
		}
	}()

	router := mux.NewRouter()
	setupRoutes(router)

	limiter := middleware.NewIPRateLimiter(rate.Limit(conf.Configuration.RateLimitPerSecond), conf.Configuration.RateLimitBurstLimit)
	handler := buildHandler(router, limiter)

	server := &http.Server{
		Addr:              "0.0.0.0:" + conf.Configuration.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("%s Proxy server running at http://localhost:%s", logcolors.LogServer, conf.Configuration.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Infof("%s Shutting down", logcolors.LogServer)
		return server.Shutdown(shutdownCtx)
	})

	if nowPlaying != nil {
		g.Go(func() error {
			return nowPlaying.Run(gctx)
		})
	}

	g.Go(func() error {
		pruneLimiter(gctx, limiter)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("%s Server stopped with error: %v", logcolors.LogServer, err)
		return
	}
	log.Infof("%s Server stopped", logcolors.LogServer)
}

// buildHandler chains logging, CORS and rate limiting around the router.
func buildHandler(router *mux.Router, limiter *middleware.IPRateLimiter) http.Handler {
	loggedRouter := middleware.LoggingMiddleware(router)
	corsHandler := newCORS().Handler(loggedRouter)
	return limiter.Middleware(corsHandler)
}

// pruneLimiter drops idle client buckets until ctx is done.
func pruneLimiter(ctx context.Context, limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(limiterPruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(limiterIdleDuration); n > 0 {
				log.Debugf("%s Pruned %d idle clients", logcolors.LogRateLimit, n)
			}
		}
	}
}
