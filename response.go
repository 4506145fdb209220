package main

import (
	"encoding/json"
	"net/http"
)

// APIResponse handles consistent header setting for JSON, text and binary
// responses. It centralizes X-Cache-Status, X-Image-Source and the explicit
// CORS headers the proxy endpoints carry.
type APIResponse struct {
	w           http.ResponseWriter
	r           *http.Request
	cacheStatus string
	source      string
	cors        bool
}

// Respond creates a response helper for the request
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetCacheStatus sets the X-Cache-Status header value
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

// SetSource sets the X-Image-Source header value
func (a *APIResponse) SetSource(source string) *APIResponse {
	a.source = source
	return a
}

// CORS adds the allow-any-origin headers regardless of the request's Origin
func (a *APIResponse) CORS() *APIResponse {
	a.cors = true
	return a
}

func (a *APIResponse) writeHeaders(contentType string) {
	h := a.w.Header()
	h.Set("Content-Type", contentType)

	if a.cacheStatus != "" {
		h.Set("X-Cache-Status", a.cacheStatus)
	}
	if a.source != "" {
		h.Set("X-Image-Source", a.source)
	}
	if a.cors {
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders("application/json")
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes headers, sets status code, and encodes error response
func (a *APIResponse) Error(statusCode int, data interface{}) error {
	a.writeHeaders("application/json")
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}

// Text writes a plain text body with the given status code
func (a *APIResponse) Text(statusCode int, message string) error {
	a.writeHeaders("text/plain; charset=utf-8")
	a.w.WriteHeader(statusCode)
	_, err := a.w.Write([]byte(message))
	return err
}

// Bytes writes a raw body with the given content type (200 OK)
func (a *APIResponse) Bytes(contentType string, data []byte) error {
	a.writeHeaders(contentType)
	_, err := a.w.Write(data)
	return err
}
