package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/internal/registration"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

// RegistrationService is the registration operations the API exposes.
type RegistrationService interface {
	Register(ctx context.Context, actor domain.Actor, req *registration.RegisterRequest) (*registration.Result, error)
	ConfirmPayment(ctx context.Context, reference string) (*domain.Registration, error)
	Renew(ctx context.Context, actor domain.Actor, deviceID uuid.UUID, req *registration.RenewRequest) (*registration.Result, error)
	AgentStats(ctx context.Context, agentID uuid.UUID) (domain.AgentRegistrationStats, error)
	Registrations(ctx context.Context, deviceID uuid.UUID) ([]*domain.Registration, error)
}

// DeviceReader authorizes access to a device before its registrations are listed.
type DeviceReader interface {
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Device, error)
}

type RegistrationHandler struct {
	service   RegistrationService
	devices   DeviceReader
	validator *validator.Validator
	logger    logger.Logger
}

func NewRegistrationHandler(service RegistrationService, devices DeviceReader, val *validator.Validator, log logger.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		service:   service,
		devices:   devices,
		validator: val,
		logger:    log,
	}
}

// Register creates a device with its first registration.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req registration.RegisterRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	res, err := h.service.Register(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, r, h.logger, "Register device", err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required,max=100"`
}

// Confirm settles a registration paid through the external gateway.
func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	reg, err := h.service.ConfirmPayment(r.Context(), req.PaymentReference)
	if err != nil {
		respondServiceError(w, r, h.logger, "Confirm payment", err)
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

// Renew extends a device's coverage.
func (h *RegistrationHandler) Renew(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req registration.RenewRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	res, err := h.service.Renew(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, r, h.logger, "Renew registration", err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// List returns the registration chain of a device the caller may read.
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.devices.Get(r.Context(), actor, id); err != nil {
		respondServiceError(w, r, h.logger, "List registrations", err)
		return
	}
	regs, err := h.service.Registrations(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, "List registrations", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"registrations": regs,
		"count":         len(regs),
	})
}

// AgentStats reports the calling agent's quota position.
func (h *RegistrationHandler) AgentStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	stats, err := h.service.AgentStats(r.Context(), actor.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, "Agent stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
