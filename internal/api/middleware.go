package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		}
		switch {
		case rec.status >= 500:
			log.Error("request", fields...)
		case rec.status >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	})
}

// maxTrackedSources bounds the per-source buckets. Sources seen after the
// cap is reached share one overflow bucket.
const maxTrackedSources = 1024

// sourceLimiter keeps one token bucket per source. A zero rate disables it.
type sourceLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	max      int
	limiters map[string]*rate.Limiter
	overflow *rate.Limiter
}

func newSourceLimiter(rps float64, burst int) *sourceLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &sourceLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		max:      maxTrackedSources,
		limiters: make(map[string]*rate.Limiter),
		overflow: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (l *sourceLimiter) allow(source string) bool {
	if l == nil {
		return true
	}
	return l.bucket(source).Allow()
}

func (l *sourceLimiter) bucket(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[source]; ok {
		return lim
	}
	if len(l.limiters) >= l.max {
		return l.overflow
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters[source] = lim
	return lim
}

func (h *Handler) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := strings.ToLower(r.PathValue("source"))
		if !h.limits.allow(source) {
			metrics.RateLimited.WithLabelValues(source).Inc()
			h.log.Warn("rate limit exceeded", zap.String("source", source), zap.String("remote_addr", r.RemoteAddr))
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next(w, r)
	}
}
