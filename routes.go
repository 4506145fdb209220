package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes
func setupRoutes(router *mux.Router) {
	// Device API passthrough and image proxy used by the display
	router.HandleFunc("/proxy", proxyHandler).Methods(http.MethodGet)
	router.HandleFunc("/image-proxy", imageProxyHandler).Methods(http.MethodGet)
	router.HandleFunc("/images-list", imagesListHandler).Methods(http.MethodGet)

	// Display state
	router.HandleFunc("/display", displayHandler).Methods(http.MethodGet)
	router.HandleFunc("/display/layout", layoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/display/skip", skipHandler).Methods(http.MethodPost)

	// Health, stats and cache endpoints
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/stats", getStats)
	router.HandleFunc("/cache", getCacheStatus)

	// Circuit breaker endpoints
	router.HandleFunc("/circuit-breaker", getCircuitBreakerStatus)
	router.HandleFunc("/circuit-breaker/reset", resetCircuitBreaker).Methods(http.MethodPost)

	// Local standby images, then the UI bundle with its catch-all
	router.PathPrefix("/images/").Handler(
		http.StripPrefix("/images/", http.FileServer(http.Dir(conf.Configuration.ImagesDir))))
	router.PathPrefix("/").Handler(newStaticHandler(
		conf.Configuration.DistDir,
		conf.Configuration.PublicDir,
	))
}
