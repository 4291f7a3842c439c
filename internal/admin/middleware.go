package admin

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitMiddleware guards AdminAPI's control endpoints with a single
// shared token bucket: this is a control plane, not a public API, so one
// limiter for the whole process is enough.
type rateLimitMiddleware struct {
	limiter *rate.Limiter
	enabled bool
}

func newRateLimitMiddleware(requestsPerSecond float64, burst int) *rateLimitMiddleware {
	if requestsPerSecond <= 0 {
		return &rateLimitMiddleware{enabled: false}
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		enabled: true,
	}
}

func (m *rateLimitMiddleware) middleware(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request at Info, matching the terseness of
// the rest of the runtime's access logging.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.Info("admin: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
