package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"devreg/internal/domain"
	"devreg/internal/transfer"
	"devreg/pkg/errors"
)

const transferColumns = `
	id, device_id, current_owner_id, new_owner_id, new_owner_email, transfer_message,
	transfer_type, status, initiated_at, accepted_at, rejected_at, completed_at,
	expires_at, expiry_notified_at`

type TransferRepository struct {
	db *sqlx.DB
}

func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

type lockedDevice struct {
	OwnerID uuid.UUID           `db:"owner_id"`
	Status  domain.DeviceStatus `db:"status"`
}

// lockDevice takes the device row lock that serialises transfer creation
// and completion.
func lockDevice(ctx context.Context, tx *sqlx.Tx, deviceID uuid.UUID) (*lockedDevice, error) {
	var d lockedDevice
	err := tx.GetContext(ctx, &d, `SELECT owner_id, status FROM devices WHERE id = $1 FOR UPDATE`, deviceID)
	if noRows(err) {
		return nil, errors.ErrDeviceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock device")
	}
	return &d, nil
}

// CreateActive inserts t unless the device already has an unexpired
// PENDING or ACCEPTED transfer. Expired rows keep their stored status, so
// the check is done here under the device lock rather than by an index.
func (r *TransferRepository) CreateActive(ctx context.Context, t *domain.OwnershipTransfer, now time.Time) error {
	t.InitiatedAt = dbTime(t.InitiatedAt)
	t.ExpiresAt = dbTime(t.ExpiresAt)

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		d, err := lockDevice(ctx, tx, t.DeviceID)
		if err != nil {
			return err
		}
		if d.OwnerID != t.CurrentOwnerID {
			return errors.ErrNotDeviceOwner
		}
		if !transfer.Transferable(d.Status) {
			return errors.ErrDeviceNotTransferable
		}

		var active bool
		err = tx.GetContext(ctx, &active, `
			SELECT EXISTS (
				SELECT 1 FROM ownership_transfers
				WHERE device_id = $1 AND status IN ($2, $3) AND expires_at >= $4
			)
		`, t.DeviceID, domain.TransferStatusPending, domain.TransferStatusAccepted, now)
		if err != nil {
			return errors.Wrap(err, "failed to check active transfers")
		}
		if active {
			return errors.ErrTransferAlreadyActive
		}

		query := `
			INSERT INTO ownership_transfers (` + transferColumns + `)
			VALUES (
				:id, :device_id, :current_owner_id, :new_owner_id, :new_owner_email, :transfer_message,
				:transfer_type, :status, :initiated_at, :accepted_at, :rejected_at, :completed_at,
				:expires_at, :expiry_notified_at
			)
		`
		_, err = tx.NamedExecContext(ctx, query, t)
		return errors.Wrap(err, "failed to create transfer")
	})
}

func (r *TransferRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.OwnershipTransfer, error) {
	var t domain.OwnershipTransfer
	query := `SELECT ` + transferColumns + ` FROM ownership_transfers WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, id)
	if noRows(err) {
		return nil, errors.ErrTransferNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transfer")
	}
	return &t, nil
}

func (r *TransferRepository) FindActiveByDevice(ctx context.Context, deviceID uuid.UUID, now time.Time) (*domain.OwnershipTransfer, error) {
	var t domain.OwnershipTransfer
	query := `
		SELECT ` + transferColumns + `
		FROM ownership_transfers
		WHERE device_id = $1 AND status IN ($2, $3) AND expires_at >= $4
		ORDER BY initiated_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &t, query, deviceID, domain.TransferStatusPending, domain.TransferStatusAccepted, now)
	if noRows(err) {
		return nil, errors.ErrTransferNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active transfer")
	}
	return &t, nil
}

// UpdateStatus applies an accept, reject or cancel. It fails with
// ErrTransferNotActionable if another request moved the transfer first.
func (r *TransferRepository) UpdateStatus(ctx context.Context, t *domain.OwnershipTransfer, from domain.TransferStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ownership_transfers SET
			status = $1,
			new_owner_id = $2,
			accepted_at = $3,
			rejected_at = $4
		WHERE id = $5 AND status = $6
	`, t.Status, t.NewOwnerID, t.AcceptedAt, t.RejectedAt, t.ID, from)
	if err != nil {
		return errors.Wrap(err, "failed to update transfer")
	}
	n, err := affected(res)
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.ErrTransferNotActionable
	}
	return nil
}

// CompleteWithOwnerChange finishes an accepted transfer and moves the
// device to its new owner. Nothing is written unless the device still
// belongs to the owner who started the transfer and its status still allows
// a handover.
func (r *TransferRepository) CompleteWithOwnerChange(ctx context.Context, t *domain.OwnershipTransfer, newOwnerID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		d, err := lockDevice(ctx, tx, t.DeviceID)
		if err != nil {
			return err
		}
		if d.OwnerID != t.CurrentOwnerID {
			return errors.ErrTransferNotActionable
		}
		if !transfer.Transferable(d.Status) {
			return errors.ErrDeviceNotTransferable
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE ownership_transfers SET status = $1, completed_at = $2
			WHERE id = $3 AND status = $4
		`, domain.TransferStatusCompleted, t.CompletedAt, t.ID, domain.TransferStatusAccepted)
		if err != nil {
			return errors.Wrap(err, "failed to complete transfer")
		}
		n, err := affected(res)
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return errors.ErrTransferNotActionable
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE devices SET owner_id = $1, updated_at = NOW() WHERE id = $2
		`, newOwnerID, t.DeviceID)
		return errors.Wrap(err, "failed to reassign device")
	})
}

func (r *TransferRepository) FindIncoming(ctx context.Context, userID uuid.UUID, email string, limit, offset int) ([]*domain.OwnershipTransfer, error) {
	ts := []*domain.OwnershipTransfer{}
	query := `
		SELECT ` + transferColumns + `
		FROM ownership_transfers
		WHERE new_owner_id = $1 OR LOWER(new_owner_email) = $2
		ORDER BY initiated_at DESC
		LIMIT $3 OFFSET $4
	`
	if err := r.db.SelectContext(ctx, &ts, query, userID, email, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list incoming transfers")
	}
	return ts, nil
}

func (r *TransferRepository) FindOutgoing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.OwnershipTransfer, error) {
	ts := []*domain.OwnershipTransfer{}
	query := `
		SELECT ` + transferColumns + `
		FROM ownership_transfers
		WHERE current_owner_id = $1
		ORDER BY initiated_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &ts, query, userID, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list outgoing transfers")
	}
	return ts, nil
}

func (r *TransferRepository) FindExpiredUnnotified(ctx context.Context, now time.Time, limit int) ([]*domain.OwnershipTransfer, error) {
	ts := []*domain.OwnershipTransfer{}
	query := `
		SELECT ` + transferColumns + `
		FROM ownership_transfers
		WHERE status IN ($1, $2) AND expires_at < $3 AND expiry_notified_at IS NULL
		ORDER BY expires_at
		LIMIT $4
	`
	err := r.db.SelectContext(ctx, &ts, query, domain.TransferStatusPending, domain.TransferStatusAccepted, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find expired transfers")
	}
	return ts, nil
}

func (r *TransferRepository) MarkExpiryNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ownership_transfers SET expiry_notified_at = $1
		WHERE id = $2 AND expiry_notified_at IS NULL
	`, at, id)
	return errors.Wrap(err, "failed to mark transfer expiry notified")
}
