package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"devreg/pkg/logger"
)

// WindowCounter counts hits on a key inside a fixed window.
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter applies a fixed-window rate limit backed by Redis.
type RateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	logger  logger.Logger
}

// NewRateLimiter constructs a RateLimiter with the given limit and window.
func NewRateLimiter(counter WindowCounter, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  log,
	}
}

// Limit enforces the rate limit, keyed by client IP and, when available, user ID.
// Requests pass through when the counter is unreachable.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}

		key := fmt.Sprintf("ratelimit:%s", ip)
		if actor, ok := ActorFromContext(r.Context()); ok {
			key = fmt.Sprintf("ratelimit:%s:%s", ip, actor.ID.String())
		}

		count, err := rl.counter.IncrementWindow(r.Context(), key, rl.window)
		if err != nil {
			rl.logger.Warn("Rate limit counter unavailable", map[string]interface{}{
				"error":      err.Error(),
				"request_id": RequestIDFromContext(r.Context()),
			})
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
