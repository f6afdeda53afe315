package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"devreg/internal/device"
	"devreg/internal/domain"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

// DeviceService is the device operations the API exposes.
type DeviceService interface {
	UpdateStatus(ctx context.Context, actor domain.Actor, id uuid.UUID, req device.TransitionRequest) (*device.StatusUpdateResult, error)
	AdminSetStatus(ctx context.Context, admin domain.Actor, id uuid.UUID, status domain.DeviceStatus, reason string) (*device.StatusUpdateResult, error)
	Verify(ctx context.Context, raw string) (*device.VerificationResult, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Device, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Device, error)
	History(ctx context.Context, actor domain.Actor, id uuid.UUID, limit, offset int) ([]*domain.StatusChange, error)
}

// DeviceHandler serves device lookup and status endpoints.
type DeviceHandler struct {
	service   DeviceService
	validator *validator.Validator
	logger    logger.Logger
}

func NewDeviceHandler(service DeviceService, val *validator.Validator, log logger.Logger) *DeviceHandler {
	return &DeviceHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// deviceView adds the owner's next legal statuses to a device.
type deviceView struct {
	*domain.Device
	NextTargets []domain.DeviceStatus `json:"next_targets"`
}

// List returns the caller's devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)

	devices, err := h.service.ListByOwner(r.Context(), actor.ID, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, "List devices", err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{Device: d, NextTargets: device.AllowedTargets(d.Status)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": views,
		"count":   len(views),
		"limit":   limit,
		"offset":  offset,
	})
}

// Get returns one device owned by the caller.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, r, h.logger, "Get device", err)
		return
	}
	respondJSON(w, http.StatusOK, deviceView{Device: d, NextTargets: device.AllowedTargets(d.Status)})
}

// UpdateStatus applies an owner status change.
func (h *DeviceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req device.TransitionRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	req.To = domain.DeviceStatus(strings.ToUpper(string(req.To)))

	res, err := h.service.UpdateStatus(r.Context(), actor, id, req)
	if err != nil {
		respondServiceError(w, r, h.logger, "Update device status", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type adminStatusRequest struct {
	Status domain.DeviceStatus `json:"status" validate:"required,device_status"`
	Reason string              `json:"reason" validate:"required,max=500"`
}

// AdminSetStatus lets an administrator force any status, including BLOCKED.
func (h *DeviceHandler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req adminStatusRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	res, err := h.service.AdminSetStatus(r.Context(), actor, id, domain.DeviceStatus(strings.ToUpper(string(req.Status))), req.Reason)
	if err != nil {
		respondServiceError(w, r, h.logger, "Admin set status", err)
		return
	}
	h.logger.Info("Device status set by admin", map[string]interface{}{
		"device_id": id,
		"admin_id":  actor.ID,
		"status":    res.Device.Status,
	})
	respondJSON(w, http.StatusOK, res)
}

// History lists the status audit trail of a device.
func (h *DeviceHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, offset := page(r)

	changes, err := h.service.History(r.Context(), actor, id, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, "Device history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

// Verify is the public IMEI check. Unregistered devices return 200 with
// status UNKNOWN.
func (h *DeviceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Verify(r.Context(), mux.Vars(r)["imei"])
	if err != nil {
		respondServiceError(w, r, h.logger, "Verify device", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
