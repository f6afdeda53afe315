package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	regerrors "devreg/pkg/errors"
	"devreg/pkg/logger"
)

// IdempotencyStore is the subset of the cache the middleware needs.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key on unsafe methods.
type IdempotencyMiddleware struct {
	store    IdempotencyStore
	ttl      time.Duration
	logger   logger.Logger
	required bool
	wait     time.Duration
	poll     time.Duration
}

// NewIdempotencyMiddleware constructs an IdempotencyMiddleware with a TTL.
// When required is false, requests without a key pass through untouched.
func NewIdempotencyMiddleware(store IdempotencyStore, ttl time.Duration, required bool, log logger.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		store:    store,
		ttl:      ttl,
		logger:   log,
		required: required,
		wait:     5 * time.Second,
		poll:     100 * time.Millisecond,
	}
}

// Require guards POST/PUT/PATCH/DELETE requests carrying an Idempotency-Key.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut &&
			r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			if m.required {
				jsonError(w, http.StatusBadRequest, "Idempotency-Key header required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Keys are scoped per caller so two users cannot collide.
		scope := "anonymous"
		if actor, ok := ActorFromContext(r.Context()); ok {
			scope = actor.ID.String()
		}
		dataKey := fmt.Sprintf("idempotency:data:%s:%s:%s", scope, r.Method, key)
		lockKey := fmt.Sprintf("idempotency:lock:%s:%s:%s", scope, r.Method, key)

		if m.replayCached(w, r, dataKey) {
			return
		}

		ok, err := m.store.SetNX(r.Context(), lockKey, RequestIDFromContext(r.Context()), m.ttl)
		if err != nil {
			m.logger.Error("Idempotency lock failed", map[string]interface{}{
				"error": err.Error(),
				"key":   key,
			})
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if !ok {
			// Another request with this key is in flight; wait for its response.
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(m.poll):
				}
				if m.replayCached(w, r, dataKey) {
					return
				}
			}
			jsonError(w, http.StatusConflict, regerrors.ErrDuplicateRequest.Error())
			return
		}
		defer func() {
			if err := m.store.Delete(context.Background(), lockKey); err != nil {
				m.logger.Warn("Idempotency unlock failed", map[string]interface{}{"error": err.Error()})
			}
		}()

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		// Server errors are retryable and are not replayed.
		if cw.status == 0 || cw.status >= http.StatusInternalServerError || cw.overflow {
			return
		}
		resp := capturedResponse{Status: cw.status, Body: cw.buf, Headers: cw.headers}
		if err := m.store.Set(r.Context(), dataKey, resp, m.ttl); err != nil {
			m.logger.Warn("Idempotency response not cached", map[string]interface{}{"error": err.Error()})
		}
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	var cr capturedResponse
	if err := m.store.Get(r.Context(), dataKey, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

type captureWriter struct {
	http.ResponseWriter
	buf      []byte
	limit    int
	status   int
	overflow bool
	headers  map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if len(w.buf)+len(p) > w.limit {
		w.overflow = true
	} else {
		w.buf = append(w.buf, p...)
	}
	return w.ResponseWriter.Write(p)
}
