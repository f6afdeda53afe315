package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/internal/transfer"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

// TransferService is the ownership transfer operations the API exposes.
type TransferService interface {
	Initiate(ctx context.Context, actor domain.Actor, req *transfer.InitiateRequest) (*transfer.View, error)
	Accept(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)
	Reject(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)
	Cancel(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)
	Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)
	ListIncoming(ctx context.Context, actor domain.Actor, limit, offset int) ([]*transfer.View, error)
	ListOutgoing(ctx context.Context, actor domain.Actor, limit, offset int) ([]*transfer.View, error)
}

type TransferHandler struct {
	service   TransferService
	validator *validator.Validator
	logger    logger.Logger
}

func NewTransferHandler(service TransferService, val *validator.Validator, log logger.Logger) *TransferHandler {
	return &TransferHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Initiate offers a device to a new owner.
func (h *TransferHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req transfer.InitiateRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	view, err := h.service.Initiate(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, r, h.logger, "Initiate transfer", err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Get transfer", h.service.Get)
}

func (h *TransferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Accept transfer", h.service.Accept)
}

func (h *TransferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Reject transfer", h.service.Reject)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Cancel transfer", h.service.Cancel)
}

func (h *TransferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Complete transfer", h.service.Complete)
}

type transferAction func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error)

func (h *TransferHandler) act(w http.ResponseWriter, r *http.Request, op string, fn transferAction) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := fn(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, r, h.logger, op, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Incoming lists transfers offered to the caller.
func (h *TransferHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "List incoming transfers", h.service.ListIncoming)
}

// Outgoing lists transfers the caller started.
func (h *TransferHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "List outgoing transfers", h.service.ListOutgoing)
}

func (h *TransferHandler) list(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.Actor, int, int) ([]*transfer.View, error)) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)

	views, err := fn(r.Context(), actor, limit, offset)
	if err != nil {
		respondServiceError(w, r, h.logger, op, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": views,
		"count":     len(views),
		"limit":     limit,
		"offset":    offset,
	})
}
