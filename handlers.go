package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nowplaying-proxy-go/cache"
	"nowplaying-proxy-go/circuitbreaker"
	"nowplaying-proxy-go/display"
	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/poller"
	"nowplaying-proxy-go/services/imageproxy"
	"nowplaying-proxy-go/services/metaproxy"
	"nowplaying-proxy-go/stats"
	"nowplaying-proxy-go/utils"

	log "github.com/sirupsen/logrus"
)

const deviceCheckTimeout = 3 * time.Second

func proxyHandler(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")

	body, err := metaProxy.Proxy(r.Context(), target)
	if errors.Is(err, metaproxy.ErrMissingURL) {
		Respond(w, r).CORS().Text(http.StatusBadRequest, "Missing url parameter")
		return
	}
	if err != nil {
		log.Errorf("%s Proxy error for %s: %v", logcolors.LogMetaProxy, target, err)
		Respond(w, r).CORS().Error(http.StatusInternalServerError, ErrorResponse{
			Error:   "Error fetching data",
			Message: err.Error(),
		})
		return
	}

	Respond(w, r).CORS().Bytes("application/json", body)
}

func imageProxyHandler(w http.ResponseWriter, r *http.Request) {
	img, err := imageProxy.Serve(r.Context(), r.URL.Query().Get("url"))
	if errors.Is(err, imageproxy.ErrMissingURL) {
		Respond(w, r).CORS().Text(http.StatusBadRequest, "Missing image URL parameter")
		return
	}
	if err != nil {
		Respond(w, r).CORS().Text(http.StatusInternalServerError, "Error fetching image")
		return
	}

	Respond(w, r).
		CORS().
		SetCacheStatus(cacheStatusFor(img.Source)).
		SetSource(string(img.Source)).
		Bytes(img.ContentType, img.Data)
}

func cacheStatusFor(source imageproxy.Source) string {
	switch source {
	case imageproxy.SourceCache:
		return "HIT"
	case imageproxy.SourceUpstream:
		return "MISS"
	default:
		return "FALLBACK"
	}
}

// imagesListHandler never fails: any problem yields an empty list.
// The standby rotation is refreshed from the same listing.
func imagesListHandler(w http.ResponseWriter, r *http.Request) {
	dir := conf.Configuration.ImagesDir

	if created, err := utils.EnsureDir(dir); err != nil {
		log.Errorf("%s Error creating images directory %s: %v", logcolors.LogImagesList, dir, err)
	} else if created {
		log.Infof("%s Created images directory at: %s", logcolors.LogImagesList, dir)
	}

	files, err := utils.ListImages(dir, utils.ListableImageExtensions)
	if rotator != nil {
		rotator.SetImages(display.StandbyImages(files, err))
	}
	if err != nil {
		log.Errorf("%s Error listing images: %v", logcolors.LogImagesList, err)
		Respond(w, r).JSON([]string{})
		return
	}
	if files == nil {
		files = []string{}
	}

	log.Infof("%s Found %d images in %s", logcolors.LogImagesList, len(files), dir)
	Respond(w, r).JSON(files)
}

// currentState is the poller's latest decision, or standby when polling is off.
func currentState() poller.State {
	if nowPlaying == nil {
		return poller.State{Mode: poller.ModeStandby}
	}
	return nowPlaying.Snapshot()
}

func displayHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(display.Render(currentState(), layoutSwitch.Get(), rotator))
}

// layoutHandler toggles the layout, or sets it from ?layout=horizontal|vertical.
func layoutHandler(w http.ResponseWriter, r *http.Request) {
	var layout display.Layout

	if requested := r.URL.Query().Get("layout"); requested != "" {
		parsed, err := display.ParseLayout(requested)
		if err != nil {
			Respond(w, r).Error(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid layout",
				Message: err.Error(),
			})
			return
		}
		layoutSwitch.Set(parsed)
		layout = parsed
	} else {
		layout = layoutSwitch.Toggle()
	}

	log.Infof("%s Layout set to %s", logcolors.LogDisplay, layout)
	Respond(w, r).JSON(DisplayLayoutResponse{Layout: layout})
}

// skipHandler advances the standby rotation, used when an image fails to load.
func skipHandler(w http.ResponseWriter, r *http.Request) {
	if rotator != nil {
		rotator.Skip()
	}
	Respond(w, r).JSON(display.Render(currentState(), layoutSwitch.Get(), rotator))
}

func getStats(w http.ResponseWriter, r *http.Request) {
	s := stats.Get()
	snapshot := s.Snapshot()

	// Add cache storage info
	numBlobs, sizeInKB := blobCache.Stats()
	snapshot["cache_storage"] = map[string]interface{}{
		"entries": numBlobs,
		"size_kb": sizeInKB,
		"size_mb": float64(sizeInKB) / 1024,
	}

	// Add circuit breaker status
	snapshot["circuit_breaker"] = map[string]interface{}{
		"state":              imageBreaker.State().String(),
		"failures":           imageBreaker.Failures(),
		"cooldown_remaining": imageBreaker.TimeUntilRetry().String(),
	}

	Respond(w, r).JSON(snapshot)
}

func getCacheStatus(w http.ResponseWriter, r *http.Request) {
	numBlobs, sizeInKB := blobCache.Stats()
	s := stats.Get()

	response := CacheStatusResponse{
		NumberOfEntries: numBlobs,
		SizeInKB:        sizeInKB,
		SizeInMB:        float64(sizeInKB) / 1024,
		Performance: CachePerformance{
			Hits:        s.CacheHits.Load(),
			Misses:      s.CacheMisses.Load(),
			WriteErrors: s.CacheWriteErrors.Load(),
			HitRate:     s.CacheHitRate(),
		},
	}

	// ?entries=true lists the sidecar record of every blob
	if r.URL.Query().Get("entries") == "true" {
		response.Entries = make(map[string]cache.Meta)
		blobCache.Range(func(key string, meta cache.Meta) bool {
			response.Entries[key] = meta
			return true
		})
	}

	Respond(w, r).JSON(response)
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	cbState := imageBreaker.State()
	numBlobs, sizeInKB := blobCache.Stats()

	health := map[string]interface{}{
		"status":          "ok",
		"circuit_breaker": cbState.String(),
		"cache": map[string]interface{}{
			"entries": numBlobs,
			"size_kb": sizeInKB,
		},
	}

	// If circuit breaker is open, mark as degraded
	if cbState == circuitbreaker.StateOpen {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = imageBreaker.TimeUntilRetry().String()
	}

	if err := checkDevice(r.Context()); err != nil {
		log.Warnf("%s Device unreachable: %v", logcolors.LogHealth, err)
		health["device"] = "unreachable"
		health["device_error"] = err.Error()
		health["status"] = "degraded"
	} else {
		health["device"] = "connected"
	}

	if nowPlaying != nil {
		health["display_mode"] = nowPlaying.Snapshot().Mode.String()
	}

	Respond(w, r).JSON(health)
}

// checkDevice asks the device for getStatusEx.
func checkDevice(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, deviceCheckTimeout)
	defer cancel()

	_, err := upstreamClient.FetchJSON(ctx, conf.StatusURL("getStatusEx"))
	return err
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"name":             imageBreaker.Name(),
		"state":            imageBreaker.State().String(),
		"failures":         imageBreaker.Failures(),
		"time_until_retry": imageBreaker.TimeUntilRetry().String(),
		"config": map[string]interface{}{
			"threshold":    conf.Configuration.CircuitBreakerThreshold,
			"cooldown_sec": conf.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	imageBreaker.Reset()

	Respond(w, r).JSON(map[string]interface{}{
		"message": "Circuit breaker reset to CLOSED state",
	})
}
