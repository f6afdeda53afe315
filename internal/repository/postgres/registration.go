package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"devreg/internal/domain"
	"devreg/internal/registration"
	"devreg/pkg/errors"
)

const registrationColumns = `
	id, device_id, registered_by, owner_id, registration_type, payment_method,
	amount_due, currency, payment_reference, payment_status, is_free_registration,
	expiry_date, account_created, owner_email, owner_phone, is_renewal,
	created_at, settled_at`

// pendingRegistrationIndex allows one unpaid registration per device.
const pendingRegistrationIndex = "idx_registrations_one_pending"

type RegistrationRepository struct {
	db *sqlx.DB
}

func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create writes a registration plan in one transaction. Agent fees are
// taken with conditional updates so two concurrent registrations can never
// overdraw the wallet or spend the same free slot.
func (r *RegistrationRepository) Create(ctx context.Context, plan *registration.Plan) error {
	reg := plan.Registration
	reg.CreatedAt = dbTime(reg.CreatedAt)
	if reg.SettledAt != nil {
		settled := dbTime(*reg.SettledAt)
		reg.SettledAt = &settled
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if plan.NewOwner != nil {
			if err := insertUser(ctx, tx, plan.NewOwner); err != nil {
				return err
			}
		}
		if plan.Device != nil {
			if err := insertDevice(ctx, tx, plan.Device); err != nil {
				return err
			}
		}

		if reg.RegistrationType == domain.RegistrationTypeAgent {
			if err := chargeAgent(ctx, tx, reg, plan.Threshold); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO registrations (` + registrationColumns + `)
			VALUES (
				:id, :device_id, :registered_by, :owner_id, :registration_type, :payment_method,
				:amount_due, :currency, :payment_reference, :payment_status, :is_free_registration,
				:expiry_date, :account_created, :owner_email, :owner_phone, :is_renewal,
				:created_at, :settled_at
			)
		`
		_, err := tx.NamedExecContext(ctx, query, reg)
		if constraint, dup := isUniqueViolation(err); dup && constraint == pendingRegistrationIndex {
			return errors.ErrRenewalPending
		}
		return errors.Wrap(err, "failed to create registration")
	})
}

func chargeAgent(ctx context.Context, tx *sqlx.Tx, reg *domain.Registration, threshold int) error {
	var (
		query   string
		args    []interface{}
		failure error
	)

	switch reg.PaymentMethod {
	case domain.PaymentMethodWallet:
		query = `
			UPDATE agents SET
				wallet_balance = wallet_balance - $1,
				paid_registrations = paid_registrations + 1,
				updated_at = NOW()
			WHERE user_id = $2 AND wallet_balance >= $1
		`
		args = []interface{}{reg.AmountDue, reg.RegisteredBy}
		failure = errors.ErrInsufficientBalance
	case domain.PaymentMethodFree:
		query = `
			UPDATE agents SET
				free_registrations_used = free_registrations_used + 1,
				updated_at = NOW()
			WHERE user_id = $1 AND paid_registrations / $2 > free_registrations_used
		`
		args = []interface{}{reg.RegisteredBy, threshold}
		failure = errors.ErrNoFreeQuota
	default:
		return nil
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to charge agent")
	}
	n, err := affected(res)
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return failure
	}
	return nil
}

func (r *RegistrationRepository) FindByReference(ctx context.Context, reference string) (*domain.Registration, error) {
	var reg domain.Registration
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE payment_reference = $1`
	err := r.db.GetContext(ctx, &reg, query, reference)
	if noRows(err) {
		return nil, errors.ErrRegistrationMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find registration")
	}
	return &reg, nil
}

func (r *RegistrationRepository) FindLatestByDevice(ctx context.Context, deviceID uuid.UUID) (*domain.Registration, error) {
	var reg domain.Registration
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &reg, query, deviceID)
	if noRows(err) {
		return nil, errors.ErrRegistrationMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find latest registration")
	}
	return &reg, nil
}

func (r *RegistrationRepository) FindByDevice(ctx context.Context, deviceID uuid.UUID) ([]*domain.Registration, error) {
	regs := []*domain.Registration{}
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE device_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &regs, query, deviceID); err != nil {
		return nil, errors.Wrap(err, "failed to list registrations")
	}
	return regs, nil
}

// Settle flips a pending registration to settled. Agent registrations paid
// through the gateway count toward the free quota from this point.
func (r *RegistrationRepository) Settle(ctx context.Context, reg *domain.Registration) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE registrations SET payment_status = $1, settled_at = $2
			WHERE id = $3 AND payment_status = $4
		`, domain.PaymentStatusSettled, reg.SettledAt, reg.ID, domain.PaymentStatusPending)
		if err != nil {
			return errors.Wrap(err, "failed to settle registration")
		}
		n, err := affected(res)
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return errors.ErrPaymentAlreadySettled
		}

		if reg.RegistrationType != domain.RegistrationTypeAgent {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE agents SET paid_registrations = paid_registrations + 1, updated_at = NOW()
			WHERE user_id = $1
		`, reg.RegisteredBy)
		return errors.Wrap(err, "failed to credit agent paid registrations")
	})
}
