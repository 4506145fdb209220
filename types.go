package main

import (
	"nowplaying-proxy-go/cache"
	"nowplaying-proxy-go/display"
)

// ErrorResponse is the JSON body of a failed /proxy call
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CachePerformance contains image cache hit/miss statistics
type CachePerformance struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	WriteErrors int64   `json:"write_errors"`
	HitRate     float64 `json:"hit_rate_percent"`
}

// CacheStatusResponse is the response format for /cache endpoint
type CacheStatusResponse struct {
	NumberOfEntries int                   `json:"number_of_entries"`
	SizeInKB        int                   `json:"size_kb"`
	SizeInMB        float64               `json:"size_mb"`
	Performance     CachePerformance      `json:"performance"`
	Entries         map[string]cache.Meta `json:"entries,omitempty"`
}

// DisplayLayoutResponse reports the layout after a change
type DisplayLayoutResponse struct {
	Layout display.Layout `json:"layout"`
}
