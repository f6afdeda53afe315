// Package wallet exposes agent wallet balances and top-ups. Debits happen
// only as part of a wallet-paid registration.
package wallet

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"devreg/internal/accounting"
	"devreg/internal/domain"
	"devreg/pkg/errors"
	"devreg/pkg/logger"
)

type Service struct {
	repo      Repository
	logger    logger.Logger
	currency  string
	threshold int
}

func NewService(repo Repository, currency string, threshold int, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    log,
		currency:  currency,
		threshold: threshold,
	}
}

// FundRequest credits an agent after an external top-up was received.
type FundRequest struct {
	AgentID   uuid.UUID       `json:"agent_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reference string          `json:"reference" validate:"required,max=100"`
}

type BalanceResponse struct {
	AgentID  uuid.UUID                     `json:"agent_id"`
	Currency string                        `json:"currency"`
	Balance  decimal.Decimal               `json:"balance"`
	Quota    domain.AgentRegistrationStats `json:"quota"`
}

// Balance returns the agent's wallet balance with its free registration quota.
func (s *Service) Balance(ctx context.Context, agentID uuid.UUID) (*BalanceResponse, error) {
	agent, err := s.repo.FindByUserID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		AgentID:  agent.UserID,
		Currency: s.currency,
		Balance:  agent.WalletBalance,
		Quota:    accounting.Stats(agent, s.threshold),
	}, nil
}

// Fund credits an agent wallet. The reference makes the credit idempotent.
func (s *Service) Fund(ctx context.Context, admin domain.Actor, req *FundRequest) (*BalanceResponse, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, errors.ErrAdminRequired
	}
	if !req.Amount.IsPositive() {
		return nil, errors.ErrInvalidPayment
	}

	if err := s.repo.Credit(ctx, req.AgentID, req.Amount, req.Reference); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateRequest) {
			s.logger.Warn("Duplicate wallet funding ignored", map[string]interface{}{
				"agent_id":  req.AgentID,
				"reference": req.Reference,
			})
			return s.Balance(ctx, req.AgentID)
		}
		return nil, err
	}

	s.logger.Info("Agent wallet funded", map[string]interface{}{
		"agent_id":  req.AgentID,
		"amount":    req.Amount.String(),
		"reference": req.Reference,
		"funded_by": admin.ID,
	})

	return s.Balance(ctx, req.AgentID)
}

type Repository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error)
	// Credit adds amount to the agent's balance once per reference. A
	// reference seen before returns errors.ErrDuplicateRequest.
	Credit(ctx context.Context, agentID uuid.UUID, amount decimal.Decimal, reference string) error
}
