// Package device owns the device status lifecycle: owner-reported theft and
// loss, recovery, public verification and the transition audit trail.
package device

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/internal/imei"
	"devreg/pkg/errors"
	"devreg/pkg/logger"
)

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Device, error)
	FindByIMEI(ctx context.Context, imei string) (*domain.Device, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Device, error)
	// ApplyStatusChange persists device and change atomically, provided the
	// stored row still carries expectedUpdatedAt. Otherwise it returns
	// errors.ErrConcurrentUpdate.
	ApplyStatusChange(ctx context.Context, device *domain.Device, change *domain.StatusChange, expectedUpdatedAt time.Time) error
	FindStatusHistory(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*domain.StatusChange, error)
}

// Notifier delivers user-facing messages about a device.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
}

// Publisher streams live events to connected dashboards.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

type Service struct {
	repo      Repository
	notifier  Notifier
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, notifier Notifier, publisher Publisher, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// StatusUpdateResult is returned after a successful transition.
type StatusUpdateResult struct {
	Device      *domain.Device        `json:"device"`
	Change      *domain.StatusChange  `json:"change"`
	NextTargets []domain.DeviceStatus `json:"next_targets"`
}

// UpdateStatus applies an owner-initiated transition.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, deviceID uuid.UUID, req TransitionRequest) (*StatusUpdateResult, error) {
	current, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != actor.ID {
		s.logger.Warn("Status change attempted by non-owner", map[string]interface{}{
			"device_id": deviceID,
			"actor_id":  actor.ID,
		})
		return nil, errors.ErrNotDeviceOwner
	}

	next, err := Transition(*current, req)
	if err != nil {
		s.logger.Warn("Status transition rejected", map[string]interface{}{
			"device_id":   deviceID,
			"from_status": current.Status,
			"to_status":   req.To,
			"error":       err.Error(),
		})
		return nil, err
	}

	return s.persist(ctx, current, &next, actor.ID, domain.Metadata{
		"transition_type": "owner",
		"actor_role":      actor.Role,
	})
}

// AdminSetStatus sets any status without the owner rules. It is the only way
// a device becomes BLOCKED.
func (s *Service) AdminSetStatus(ctx context.Context, admin domain.Actor, deviceID uuid.UUID, status domain.DeviceStatus, reason string) (*StatusUpdateResult, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, errors.ErrAdminRequired
	}
	if !status.Valid() {
		return nil, errors.ErrInvalidStatus
	}

	current, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Status = status
	if !status.Flagged() {
		next.OwnerMessage = nil
		next.OwnerContactPhone = nil
	}

	return s.persist(ctx, current, &next, admin.ID, domain.Metadata{
		"transition_type": "admin",
		"reason":          reason,
	})
}

func (s *Service) persist(ctx context.Context, current, next *domain.Device, actorID uuid.UUID, meta domain.Metadata) (*StatusUpdateResult, error) {
	now := s.now().UTC()
	expected := current.UpdatedAt
	next.UpdatedAt = now

	change := &domain.StatusChange{
		ID:           uuid.New(),
		DeviceID:     current.ID,
		FromStatus:   current.Status,
		ToStatus:     next.Status,
		ChangedBy:    actorID,
		OwnerMessage: next.OwnerMessage,
		Metadata:     meta,
		ChangedAt:    now,
	}

	if err := s.repo.ApplyStatusChange(ctx, next, change, expected); err != nil {
		if !stderrors.Is(err, errors.ErrConcurrentUpdate) {
			s.logger.Error("Failed to persist status change", map[string]interface{}{
				"device_id": current.ID,
				"error":     err.Error(),
			})
		}
		return nil, err
	}

	s.logger.Info("Device status changed", map[string]interface{}{
		"device_id":   current.ID,
		"from_status": change.FromStatus,
		"to_status":   change.ToStatus,
		"changed_by":  actorID,
	})

	if s.publisher != nil {
		s.publisher.Publish("device.status_changed", change)
	}
	if s.notifier != nil && actorID != next.OwnerID {
		go func(ownerID uuid.UUID) {
			_ = s.notifier.Notify(context.Background(), ownerID, "DEVICE_STATUS_CHANGED", map[string]interface{}{
				"imei":   next.IMEI1,
				"status": string(next.Status),
			})
		}(next.OwnerID)
	}

	return &StatusUpdateResult{
		Device:      next,
		Change:      change,
		NextTargets: AllowedTargets(next.Status),
	}, nil
}

// VerificationResult is what anyone checking an IMEI is shown.
type VerificationResult struct {
	IMEI              string              `json:"imei"`
	Registered        bool                `json:"registered"`
	Status            domain.DeviceStatus `json:"status"`
	Brand             string              `json:"brand,omitempty"`
	Model             string              `json:"model,omitempty"`
	OwnerMessage      *string             `json:"owner_message,omitempty"`
	OwnerContactPhone *string             `json:"owner_contact_phone,omitempty"`
}

// Verify looks up an IMEI for a prospective buyer or finder. Owner contact
// details are only disclosed for STOLEN and LOST devices.
func (s *Service) Verify(ctx context.Context, raw string) (*VerificationResult, error) {
	res := imei.Validate(raw)
	if !res.Valid {
		return nil, errors.ErrInvalidIMEI
	}

	d, err := s.repo.FindByIMEI(ctx, res.Normalized)
	if stderrors.Is(err, errors.ErrDeviceNotFound) {
		return &VerificationResult{
			IMEI:   res.Normalized,
			Status: domain.DeviceStatusUnknown,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &VerificationResult{
		IMEI:       res.Normalized,
		Registered: true,
		Status:     d.Status,
		Brand:      d.Brand,
		Model:      d.Model,
	}
	if d.Status.Flagged() {
		out.OwnerMessage = d.OwnerMessage
		out.OwnerContactPhone = d.OwnerContactPhone
	}
	return out, nil
}

// Get returns a device visible to the actor.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Device, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != actor.ID && actor.Role != domain.RoleAdmin {
		return nil, errors.ErrNotDeviceOwner
	}
	return d, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Device, error) {
	return s.repo.FindByOwner(ctx, ownerID, limit, offset)
}

func (s *Service) History(ctx context.Context, actor domain.Actor, id uuid.UUID, limit, offset int) ([]*domain.StatusChange, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.FindStatusHistory(ctx, id, limit, offset)
}
