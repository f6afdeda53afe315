package handler

import (
	"context"
	"net/http"
	"time"

	"devreg/internal/domain"
	"devreg/internal/refdata"
	"devreg/pkg/logger"
)

// Dependency is a named health probe, such as a database ping.
type Dependency struct {
	ID          string
	Name        string
	Description string
	Check       func(ctx context.Context) error
	// DegradedAfter marks a slow but successful probe as degraded.
	DegradedAfter time.Duration
}

// NotificationLogs lists recorded delivery attempts.
type NotificationLogs interface {
	FindAll(ctx context.Context, limit, offset int) ([]*domain.NotificationLog, error)
	CountAll(ctx context.Context) (int, error)
}

// ReferenceReader serves the cached reference snapshot.
type ReferenceReader interface {
	Read() *refdata.Snapshot
	Stale() bool
	Refresh(ctx context.Context) <-chan error
}

type SystemHandler struct {
	deps      []Dependency
	notifLogs NotificationLogs
	reference ReferenceReader
	logger    logger.Logger
	startTime time.Time
}

func NewSystemHandler(deps []Dependency, notifLogs NotificationLogs, reference ReferenceReader, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		deps:      deps,
		notifLogs: notifLogs,
		reference: reference,
		logger:    log,
		startTime: time.Now(),
	}
}

type ServiceStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"` // operational, degraded, outage
	LastUpdated string `json:"lastUpdated"`
	LatencyMs   int64  `json:"latency_ms"`
}

type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Services      []ServiceStatus `json:"services"`
}

// Health is the liveness probe.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "registry"})
}

// Ready probes every dependency and answers 503 when any is down.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	res := h.probe(r.Context())
	status := http.StatusOK
	if res.Status == "outage" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, res)
}

func (h *SystemHandler) probe(ctx context.Context) SystemStatusResponse {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	overall := "operational"
	services := make([]ServiceStatus, 0, len(h.deps))
	for _, dep := range h.deps {
		start := time.Now()
		err := dep.Check(ctx)
		latency := time.Since(start)

		status := "operational"
		switch {
		case err != nil:
			status = "outage"
			overall = "outage"
			h.logger.Error("Dependency check failed", map[string]interface{}{
				"dependency": dep.ID,
				"error":      err.Error(),
			})
		case dep.DegradedAfter > 0 && latency > dep.DegradedAfter:
			status = "degraded"
			if overall == "operational" {
				overall = "degraded"
			}
		}

		services = append(services, ServiceStatus{
			ID:          dep.ID,
			Name:        dep.Name,
			Description: dep.Description,
			Status:      status,
			LastUpdated: time.Now().UTC().Format(time.RFC3339),
			LatencyMs:   latency.Milliseconds(),
		})
	}

	return SystemStatusResponse{
		Status:        overall,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Services:      services,
	}
}

// Reference returns cached prices, statuses and limits. A stale snapshot is
// served as is while a refresh runs in the background.
func (h *SystemHandler) Reference(w http.ResponseWriter, r *http.Request) {
	if h.reference.Stale() {
		// Detached from the request so the refresh outlives it.
		h.reference.Refresh(context.Background())
	}
	respondJSON(w, http.StatusOK, h.reference.Read())
}

// NotificationLogs lists delivery attempts for administrators.
func (h *SystemHandler) NotificationLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)

	logs, err := h.notifLogs.FindAll(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, "List notification logs", err)
		return
	}

	total, err := h.notifLogs.CountAll(r.Context())
	if err != nil {
		h.logger.Warn("Failed to count notification logs", map[string]interface{}{"error": err.Error()})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
