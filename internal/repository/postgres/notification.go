package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

// NotificationRepository records delivery attempts.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a delivery record.
func (r *NotificationRepository) Create(ctx context.Context, log *domain.NotificationLog) error {
	log.CreatedAt = dbTime(log.CreatedAt)
	query := `
		INSERT INTO notification_logs (
			id, user_id, recipient, event_type, channel,
			subject, delivered, error, created_at
		) VALUES (
			:id, :user_id, :recipient, :event_type, :channel,
			:subject, :delivered, :error, :created_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, log)
	if err != nil {
		return errors.Wrap(err, "failed to create notification log")
	}

	return nil
}

// FindByUserID returns delivery records for a specific user.
func (r *NotificationRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.NotificationLog, error) {
	logs := []*domain.NotificationLog{}
	query := `
		SELECT id, user_id, recipient, event_type, channel, subject, delivered, error, created_at
		FROM notification_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &logs, query, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find notification logs")
	}
	return logs, nil
}

// FindAll returns all delivery records with pagination.
func (r *NotificationRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.NotificationLog, error) {
	logs := []*domain.NotificationLog{}
	query := `
		SELECT id, user_id, recipient, event_type, channel, subject, delivered, error, created_at
		FROM notification_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	err := r.db.SelectContext(ctx, &logs, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notification logs")
	}
	return logs, nil
}

// CountAll returns the total number of delivery records.
func (r *NotificationRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notification_logs`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count notification logs")
	}
	return total, nil
}
