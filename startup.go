package main

import (
	"fmt"
	"net/http"
	"time"

	"nowplaying-proxy-go/cache"
	"nowplaying-proxy-go/circuitbreaker"
	"nowplaying-proxy-go/display"
	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/poller"
	"nowplaying-proxy-go/services/imageproxy"
	"nowplaying-proxy-go/services/metaproxy"
	"nowplaying-proxy-go/services/upstream"
	"nowplaying-proxy-go/stats"
	"nowplaying-proxy-go/utils"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func milliseconds(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// bootstrapDirectories creates the images and cache directories if missing.
func bootstrapDirectories() {
	dirs := map[string]string{
		"images": conf.Configuration.ImagesDir,
		"cache":  conf.Configuration.CacheDir,
	}
	for name, dir := range dirs {
		created, err := utils.EnsureDir(dir)
		if err != nil {
			log.Errorf("%s Could not create %s directory %s: %v", logcolors.LogServer, name, dir, err)
			continue
		}
		if created {
			log.Infof("%s Created %s directory at: %s", logcolors.LogServer, name, dir)
		}
	}
}

// setupComponents builds the cache, proxies, poller and standby rotator.
func setupComponents() error {
	c := conf.Configuration

	var err error
	blobCache, err = cache.NewBlobCache(c.CacheDir, c.CacheIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open image cache: %w", err)
	}

	upstreamClient = upstream.NewClient(seconds(c.APIFetchTimeoutSecs), seconds(c.ImageFetchTimeoutSecs))

	imageBreaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      "ImageOrigin",
		Threshold: c.CircuitBreakerThreshold,
		Cooldown:  seconds(c.CircuitBreakerCooldownSecs),
	})

	imageProxy = imageproxy.New(blobCache, upstreamClient, imageBreaker, imageproxy.Config{
		ImagesDir:    c.ImagesDir,
		DefaultImage: c.DefaultImage,
	})
	metaProxy = metaproxy.New(upstreamClient, conf.FeatureFlags.ArtUpgrade)

	rotator = display.NewRotator(seconds(c.StandbyRotationSecs))
	n := rotator.Load(c.ImagesDir)
	log.Infof("%s %d standby images, rotating every %v", logcolors.LogStandby, n, rotator.Interval())

	if conf.FeatureFlags.Poller {
		nowPlaying = newPoller(conf.PollerBase() + "/proxy")
	} else {
		log.Infof("%s Poller disabled (FF_POLLER=false)", logcolors.LogPoller)
	}

	return nil
}

func newPoller(proxyURL string) *poller.Poller {
	c := conf.Configuration
	return poller.New(upstreamClient, poller.Config{
		DeviceBaseURL:  c.DeviceBaseURL,
		ProxyURL:       proxyURL,
		Interval:       milliseconds(c.PollIntervalMs),
		LoadingTimeout: milliseconds(c.LoadingTimeoutMs),
		ErrorThreshold: c.ErrorThreshold,
		Rules: poller.Rules{
			Vendors:  c.KnownVendors,
			ArtHosts: c.KnownArtHosts,
		},
	})
}

// setupStats restores persisted counters and starts periodic saving.
// A stats database that cannot be opened only disables persistence.
func setupStats() {
	store, err := stats.NewStore(conf.Configuration.StatsDBPath)
	if err != nil {
		log.Warnf("%s Stats persistence disabled: %v", logcolors.LogStats, err)
		return
	}
	if err := store.Load(); err != nil {
		log.Warnf("%s Could not restore stats: %v", logcolors.LogStats, err)
	}
	store.StartAutoSave(seconds(conf.Configuration.StatsSaveIntervalSecs))
	statsStore = store
}

// newCORS allows any origin, the way the display bundle expects.
func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}
