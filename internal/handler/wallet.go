package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/internal/wallet"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

// WalletService is the agent wallet operations the API exposes.
type WalletService interface {
	Balance(ctx context.Context, agentID uuid.UUID) (*wallet.BalanceResponse, error)
	Fund(ctx context.Context, admin domain.Actor, req *wallet.FundRequest) (*wallet.BalanceResponse, error)
}

// WalletHandler manages agent wallet endpoints.
type WalletHandler struct {
	service   WalletService
	validator *validator.Validator
	logger    logger.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(service WalletService, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// GetBalance returns the calling agent's balance and quota.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	balance, err := h.service.Balance(r.Context(), actor.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, "Get wallet balance", err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

// Fund credits an agent wallet after an external top-up.
func (h *WalletHandler) Fund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req wallet.FundRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	balance, err := h.service.Fund(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, r, h.logger, "Fund wallet", err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}
