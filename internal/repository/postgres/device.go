package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

const deviceColumns = `
	id, imei1, imei2, brand, model, status, owner_message,
	owner_contact_phone, owner_id, created_at, updated_at`

type DeviceRepository struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func insertDevice(ctx context.Context, tx *sqlx.Tx, d *domain.Device) error {
	d.CreatedAt = dbTime(d.CreatedAt)
	d.UpdatedAt = dbTime(d.UpdatedAt)
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (
			:id, :imei1, :imei2, :brand, :model, :status, :owner_message,
			:owner_contact_phone, :owner_id, :created_at, :updated_at
		)
	`
	_, err := tx.NamedExecContext(ctx, query, d)
	if _, dup := isUniqueViolation(err); dup {
		return errors.ErrDeviceAlreadyRegistered
	}
	return errors.Wrap(err, "failed to create device")
}

func (r *DeviceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	var d domain.Device
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	err := r.db.GetContext(ctx, &d, query, id)
	if noRows(err) {
		return nil, errors.ErrDeviceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find device")
	}
	return &d, nil
}

// FindByIMEI matches either IMEI slot.
func (r *DeviceRepository) FindByIMEI(ctx context.Context, imei string) (*domain.Device, error) {
	var d domain.Device
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE imei1 = $1 OR imei2 = $1 LIMIT 1`
	err := r.db.GetContext(ctx, &d, query, imei)
	if noRows(err) {
		return nil, errors.ErrDeviceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find device by imei")
	}
	return &d, nil
}

func (r *DeviceRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Device, error) {
	devices := []*domain.Device{}
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &devices, query, ownerID, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	return devices, nil
}

// ApplyStatusChange writes the new status and its audit row together. The
// update only lands if updated_at still matches what the caller read.
func (r *DeviceRepository) ApplyStatusChange(ctx context.Context, d *domain.Device, change *domain.StatusChange, expectedUpdatedAt time.Time) error {
	d.UpdatedAt = dbTime(d.UpdatedAt)
	change.ChangedAt = dbTime(change.ChangedAt)

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE devices SET
				status = $1,
				owner_message = $2,
				owner_contact_phone = $3,
				updated_at = $4
			WHERE id = $5 AND updated_at = $6
		`, d.Status, d.OwnerMessage, d.OwnerContactPhone, d.UpdatedAt, d.ID, dbTime(expectedUpdatedAt))
		if err != nil {
			return errors.Wrap(err, "failed to update device status")
		}
		n, err := affected(res)
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if n == 0 {
			return errors.ErrConcurrentUpdate
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO device_status_changes (
				id, device_id, from_status, to_status, changed_by, owner_message, metadata, changed_at
			) VALUES (
				:id, :device_id, :from_status, :to_status, :changed_by, :owner_message, :metadata, :changed_at
			)
		`, change)
		return errors.Wrap(err, "failed to record status change")
	})
}

func (r *DeviceRepository) FindStatusHistory(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*domain.StatusChange, error) {
	changes := []*domain.StatusChange{}
	query := `
		SELECT id, device_id, from_status, to_status, changed_by, owner_message, metadata, changed_at
		FROM device_status_changes
		WHERE device_id = $1
		ORDER BY changed_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &changes, query, deviceID, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to load status history")
	}
	return changes, nil
}

// CountByStatus feeds the reference data snapshot.
func (r *DeviceRepository) CountByStatus(ctx context.Context) (map[domain.DeviceStatus]int64, error) {
	var rows []struct {
		Status domain.DeviceStatus `db:"status"`
		Count  int64               `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM devices GROUP BY status`); err != nil {
		return nil, errors.Wrap(err, "failed to count devices")
	}

	out := make(map[domain.DeviceStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
