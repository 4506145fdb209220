package middleware

import (
	"net/http"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/stats"

	log "github.com/sirupsen/logrus"
)

// ResponseRecorder captures the status code and body size of a response
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BodySize   int
}

// NewResponseRecorder wraps w with a 200 default status
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (r *ResponseRecorder) WriteHeader(statusCode int) {
	r.StatusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.BodySize += n
	return n, err
}

// Flush lets streaming handlers flush through the recorder
func (r *ResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func getStatusColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return logcolors.Green
	case statusCode >= 300 && statusCode < 400:
		return logcolors.Cyan
	case statusCode >= 400 && statusCode < 500:
		return logcolors.Yellow
	case statusCode >= 500:
		return logcolors.Red
	default:
		return logcolors.Reset
	}
}

// LoggingMiddleware logs every request and feeds the global status and timing counters
func LoggingMiddleware(next http.Handler) http.Handler {
	return NewLoggingMiddleware(stats.Get())(next)
}

// NewLoggingMiddleware is LoggingMiddleware recording into s
func NewLoggingMiddleware(s *stats.Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := NewResponseRecorder(w)

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			s.RecordRequest(r.URL.Path)
			s.RecordStatusCode(rec.StatusCode)
			s.RecordResponseTime(duration, r.URL.Path)

			log.Infof("%s %s %s %s%d%s %dB %v",
				logcolors.LogServer, r.Method, r.URL.RequestURI(),
				getStatusColor(rec.StatusCode), rec.StatusCode, logcolors.Reset,
				rec.BodySize, duration)
		})
	}
}
