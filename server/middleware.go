package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/d0rc/geo-locator/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// statusWriter captures the status code and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessLog logs every request and feeds the request metrics, the body is never read.
func AccessLog(lg zerolog.Logger, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		dur := time.Since(start)

		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(dur.Milliseconds()))
		lg.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Int64("duration_ms", dur.Milliseconds()).
			Str("ip", r.RemoteAddr).
			Msg("http_access")
	})
}

// RateLimit answers 429 once the limiter runs dry, a nil limiter lets everything through.
func RateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			metrics.Tick("server.throttled", 1)
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
