package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

const userColumns = `
	id, email, phone, password_hash, first_name, last_name,
	role, is_active, created_at, updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// insertUser is shared with the registration plan, which creates owner
// accounts inside its own transaction. Emails are stored lowercased.
func insertUser(ctx context.Context, ext sqlx.ExtContext, user *domain.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = dbTime(user.CreatedAt)
	user.UpdatedAt = dbTime(user.UpdatedAt)

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (
			:id, :email, :phone, :password_hash, :first_name, :last_name,
			:role, :is_active, :created_at, :updated_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, ext, query, user)
	if _, dup := isUniqueViolation(err); dup {
		return errors.ErrUserAlreadyExists
	}
	return errors.Wrap(err, "failed to create user")
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, r.db, user)
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if noRows(err) {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email)))
	if noRows(err) {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user by email")
	}
	return &user, nil
}
