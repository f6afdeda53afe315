// Package auth provisions accounts created on behalf of device owners and
// issues the bearer tokens the API middleware accepts.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"devreg/internal/domain"
	regerrors "devreg/pkg/errors"
)

// Service creates owner accounts and signs tokens.
type Service struct {
	repo      Repository
	jwtSecret string
	jwtExpiry time.Duration
}

// NewService constructs a Service with the given repository and JWT settings.
func NewService(repo Repository, jwtSecret string, jwtExpiry time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

// OwnerDetails identifies a person an agent registers a device for.
type OwnerDetails struct {
	Email     string  `json:"email" validate:"required,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,phone"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
}

// NewOwner builds a USER account with a random temporary password. The
// account is not stored; the caller persists it with the registration so
// both succeed or fail together. The plain password is returned once for
// delivery to the owner.
func (s *Service) NewOwner(details OwnerDetails) (*domain.User, string, error) {
	temp, err := generateRandomToken(12)
	if err != nil {
		return nil, "", err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	return &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(details.Email)),
		Phone:        details.Phone,
		PasswordHash: string(passwordHash),
		FirstName:    details.FirstName,
		LastName:     details.LastName,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, temp, nil
}

// FindOwner returns the existing account for email, or regerrors.ErrUserNotFound.
func (s *Service) FindOwner(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// CreateUser stores a new account directly. Used by seeding and admin tooling.
func (s *Service) CreateUser(ctx context.Context, user *domain.User, password string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(passwordHash)

	if err := s.repo.Create(ctx, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return regerrors.ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

// IssueToken signs an access token carrying the identity claims the
// middleware reads.
func (s *Service) IssueToken(user *domain.User) (string, time.Time, error) {
	return SignToken(s.jwtSecret, user.ID, user.Email, user.Role, s.jwtExpiry)
}

// SignToken is IssueToken without a Service, for tooling and tests.
func SignToken(secret string, userID uuid.UUID, email string, role domain.Role, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"email":   email,
		"role":    string(role),
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func generateRandomToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Repository interface
type Repository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}
