package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

type AgentRepository struct {
	db *sqlx.DB
}

func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	agent.CreatedAt = dbTime(agent.CreatedAt)
	agent.UpdatedAt = dbTime(agent.UpdatedAt)
	query := `
		INSERT INTO agents (
			user_id, wallet_balance, paid_registrations, free_registrations_used, created_at, updated_at
		) VALUES (
			:user_id, :wallet_balance, :paid_registrations, :free_registrations_used, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, agent)
	return errors.Wrap(err, "failed to create agent")
}

func (r *AgentRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error) {
	var agent domain.Agent
	query := `
		SELECT user_id, wallet_balance, paid_registrations, free_registrations_used, created_at, updated_at
		FROM agents WHERE user_id = $1
	`
	err := r.db.GetContext(ctx, &agent, query, userID)
	if noRows(err) {
		return nil, errors.ErrAgentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find agent")
	}
	return &agent, nil
}

// Credit tops up a wallet once per funding reference.
func (r *AgentRepository) Credit(ctx context.Context, agentID uuid.UUID, amount decimal.Decimal, reference string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE agents SET wallet_balance = wallet_balance + $1, updated_at = NOW()
			WHERE user_id = $2
		`, amount, agentID)
		if err != nil {
			return errors.Wrap(err, "failed to credit wallet")
		}
		n, err := affected(res)
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return errors.ErrAgentNotFound
		}

		res, err = tx.ExecContext(ctx, `
			INSERT INTO wallet_fundings (reference, agent_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (reference) DO NOTHING
		`, reference, agentID, amount)
		if err != nil {
			return errors.Wrap(err, "failed to record funding")
		}
		if n, err = affected(res); err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return errors.ErrDuplicateRequest
		}
		return nil
	})
}
