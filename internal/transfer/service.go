// Package transfer implements the ownership transfer workflow between a
// device's current owner and a prospective one.
package transfer

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/pkg/errors"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

type Repository interface {
	// CreateActive inserts t while holding the device row lock and returns
	// errors.ErrTransferAlreadyActive if an unexpired non-terminal transfer exists.
	CreateActive(ctx context.Context, t *domain.OwnershipTransfer, now time.Time) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.OwnershipTransfer, error)
	FindActiveByDevice(ctx context.Context, deviceID uuid.UUID, now time.Time) (*domain.OwnershipTransfer, error)
	// UpdateStatus writes t only if the stored status is still from.
	UpdateStatus(ctx context.Context, t *domain.OwnershipTransfer, from domain.TransferStatus) error
	// CompleteWithOwnerChange marks t completed and reassigns the device in one transaction.
	CompleteWithOwnerChange(ctx context.Context, t *domain.OwnershipTransfer, newOwnerID uuid.UUID) error
	FindIncoming(ctx context.Context, userID uuid.UUID, email string, limit, offset int) ([]*domain.OwnershipTransfer, error)
	FindOutgoing(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.OwnershipTransfer, error)
	FindExpiredUnnotified(ctx context.Context, now time.Time, limit int) ([]*domain.OwnershipTransfer, error)
	MarkExpiryNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type DeviceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Device, error)
}

// UserRepository resolves recipients named by account id.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
	NotifyEmail(ctx context.Context, email string, eventType string, data map[string]interface{}) error
}

type Publisher interface {
	Publish(eventType string, payload interface{})
}

type Service struct {
	repo       Repository
	deviceRepo DeviceRepository
	users      UserRepository
	notifier   Notifier
	publisher  Publisher
	logger     logger.Logger
	ttl        time.Duration
	now        func() time.Time
}

func NewService(
	repo Repository,
	deviceRepo DeviceRepository,
	users UserRepository,
	notifier Notifier,
	publisher Publisher,
	log logger.Logger,
	ttl time.Duration,
) *Service {
	return &Service{
		repo:       repo,
		deviceRepo: deviceRepo,
		users:      users,
		notifier:   notifier,
		publisher:  publisher,
		logger:     log,
		ttl:        ttl,
		now:        time.Now,
	}
}

type InitiateRequest struct {
	DeviceID        uuid.UUID           `json:"device_id" validate:"required"`
	NewOwnerID      *uuid.UUID          `json:"new_owner_id,omitempty"`
	NewOwnerEmail   *string             `json:"new_owner_email,omitempty" validate:"omitempty,email"`
	TransferMessage *string             `json:"transfer_message,omitempty" validate:"omitempty,max=500"`
	TransferType    domain.TransferType `json:"transfer_type" validate:"omitempty,oneof=SALE GIFT OTHER"`
}

// View pairs a transfer with the status readers should act on.
type View struct {
	*domain.OwnershipTransfer
	EffectiveStatus domain.TransferStatus `json:"effective_status"`
	Expired         bool                  `json:"expired"`
}

func (s *Service) view(t *domain.OwnershipTransfer) *View {
	now := s.now()
	return &View{
		OwnershipTransfer: t,
		EffectiveStatus:   EffectiveStatus(t, now),
		Expired:           Expired(t, now),
	}
}

// Initiate opens a transfer for a device the actor owns.
func (s *Service) Initiate(ctx context.Context, actor domain.Actor, req *InitiateRequest) (*View, error) {
	if req.NewOwnerID == nil && (req.NewOwnerEmail == nil || strings.TrimSpace(*req.NewOwnerEmail) == "") {
		return nil, errors.ErrTransferTargetNeeded
	}
	if req.NewOwnerID != nil && *req.NewOwnerID == actor.ID {
		return nil, errors.ErrSelfTransfer
	}
	if req.NewOwnerEmail != nil && strings.EqualFold(strings.TrimSpace(*req.NewOwnerEmail), actor.Email) {
		return nil, errors.ErrSelfTransfer
	}

	device, err := s.deviceRepo.FindByID(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.OwnerID != actor.ID {
		return nil, errors.ErrNotDeviceOwner
	}
	if !Transferable(device.Status) {
		return nil, errors.ErrDeviceNotTransferable
	}
	if req.NewOwnerID != nil {
		if _, err := s.users.FindByID(ctx, *req.NewOwnerID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if existing, err := s.repo.FindActiveByDevice(ctx, device.ID, now); err == nil && existing != nil {
		return nil, errors.ErrTransferAlreadyActive
	} else if err != nil && !stderrors.Is(err, errors.ErrTransferNotFound) {
		return nil, err
	}

	transferType := req.TransferType
	if transferType == "" {
		transferType = domain.TransferTypeOther
	}

	t := &domain.OwnershipTransfer{
		ID:             uuid.New(),
		DeviceID:       device.ID,
		CurrentOwnerID: actor.ID,
		NewOwnerID:     req.NewOwnerID,
		TransferType:   transferType,
		Status:         domain.TransferStatusPending,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if req.NewOwnerEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*req.NewOwnerEmail))
		t.NewOwnerEmail = &email
	}
	if req.TransferMessage != nil {
		msg := validator.Sanitize(*req.TransferMessage)
		if msg != "" {
			t.TransferMessage = &msg
		}
	}

	if err := s.repo.CreateActive(ctx, t, now); err != nil {
		return nil, err
	}

	s.logger.Info("Ownership transfer initiated", map[string]interface{}{
		"transfer_id": t.ID,
		"device_id":   t.DeviceID,
		"owner_id":    actor.ID,
		"expires_at":  t.ExpiresAt,
	})
	s.publish("transfer.initiated", t)

	s.notifyRecipient(t, "TRANSFER_REQUESTED", map[string]interface{}{
		"imei":       device.IMEI1,
		"brand":      device.Brand,
		"model":      device.Model,
		"message":    t.TransferMessage,
		"expires_at": t.ExpiresAt.Format(time.RFC3339),
	})

	return s.view(t), nil
}

// Accept is called by the named recipient.
func (s *Service) Accept(ctx context.Context, actor domain.Actor, id uuid.UUID) (*View, error) {
	return s.step(ctx, actor, id, "accepted", Accept, func(t *domain.OwnershipTransfer) {
		s.notifyUser(t.CurrentOwnerID, "TRANSFER_ACCEPTED", map[string]interface{}{"transfer_id": t.ID.String()})
	})
}

// Reject is called by the named recipient.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID) (*View, error) {
	return s.step(ctx, actor, id, "rejected", Reject, func(t *domain.OwnershipTransfer) {
		s.notifyUser(t.CurrentOwnerID, "TRANSFER_REJECTED", map[string]interface{}{"transfer_id": t.ID.String()})
	})
}

// Cancel is called by the current owner.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id uuid.UUID) (*View, error) {
	return s.step(ctx, actor, id, "cancelled", Cancel, func(t *domain.OwnershipTransfer) {
		s.notifyRecipient(t, "TRANSFER_CANCELLED", map[string]interface{}{"transfer_id": t.ID.String()})
	})
}

type stepFunc func(domain.OwnershipTransfer, domain.Actor, time.Time) (domain.OwnershipTransfer, error)

func (s *Service) step(ctx context.Context, actor domain.Actor, id uuid.UUID, verb string, apply stepFunc, after func(*domain.OwnershipTransfer)) (*View, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := apply(*current, actor, s.now().UTC())
	if err != nil {
		s.logger.Warn("Transfer action rejected", map[string]interface{}{
			"transfer_id": id,
			"action":      verb,
			"actor_id":    actor.ID,
			"error":       err.Error(),
		})
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, &next, current.Status); err != nil {
		return nil, err
	}

	s.logger.Info("Ownership transfer "+verb, map[string]interface{}{
		"transfer_id": id,
		"device_id":   next.DeviceID,
		"actor_id":    actor.ID,
	})
	s.publish("transfer."+verb, &next)
	after(&next)
	return s.view(&next), nil
}

// Complete finalises an accepted transfer and reassigns the device.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (*View, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, newOwner, err := Complete(*current, actor, s.now().UTC())
	if err != nil {
		return nil, err
	}

	// A theft or loss reported after acceptance stops the handover.
	device, err := s.deviceRepo.FindByID(ctx, next.DeviceID)
	if err != nil {
		return nil, err
	}
	if !Transferable(device.Status) {
		s.logger.Warn("Transfer completion blocked by device status", map[string]interface{}{
			"transfer_id": id,
			"device_id":   device.ID,
			"status":      device.Status,
		})
		return nil, errors.ErrDeviceNotTransferable
	}

	if err := s.repo.CompleteWithOwnerChange(ctx, &next, newOwner); err != nil {
		s.logger.Error("Failed to complete ownership transfer", map[string]interface{}{
			"transfer_id": id,
			"error":       err.Error(),
		})
		return nil, err
	}

	s.logger.Info("Ownership transfer completed", map[string]interface{}{
		"transfer_id":    id,
		"device_id":      next.DeviceID,
		"previous_owner": next.CurrentOwnerID,
		"new_owner":      newOwner,
	})
	s.publish("transfer.completed", &next)

	data := map[string]interface{}{"transfer_id": id.String(), "device_id": next.DeviceID.String()}
	s.notifyUser(next.CurrentOwnerID, "TRANSFER_COMPLETED", data)
	s.notifyUser(newOwner, "TRANSFER_COMPLETED", data)

	return s.view(&next), nil
}

// Get returns a transfer to one of its two parties.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*View, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CurrentOwnerID != actor.ID && !IsRecipient(t, actor) && actor.Role != domain.RoleAdmin {
		return nil, errors.ErrNotTransferRecipient
	}
	return s.view(t), nil
}

func (s *Service) ListIncoming(ctx context.Context, actor domain.Actor, limit, offset int) ([]*View, error) {
	ts, err := s.repo.FindIncoming(ctx, actor.ID, strings.ToLower(actor.Email), limit, offset)
	if err != nil {
		return nil, err
	}
	return s.views(ts), nil
}

func (s *Service) ListOutgoing(ctx context.Context, actor domain.Actor, limit, offset int) ([]*View, error) {
	ts, err := s.repo.FindOutgoing(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.views(ts), nil
}

func (s *Service) views(ts []*domain.OwnershipTransfer) []*View {
	out := make([]*View, 0, len(ts))
	for _, t := range ts {
		out = append(out, s.view(t))
	}
	return out
}

// NotifyExpired tells owners about transfers that lapsed since the last sweep
// and returns how many were handled. Stored statuses are not changed.
func (s *Service) NotifyExpired(ctx context.Context, batch int) (int, error) {
	now := s.now().UTC()
	expired, err := s.repo.FindExpiredUnnotified(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, t := range expired {
		if err := s.repo.MarkExpiryNotified(ctx, t.ID, now); err != nil {
			s.logger.Error("Failed to mark transfer expiry notified", map[string]interface{}{
				"transfer_id": t.ID,
				"error":       err.Error(),
			})
			continue
		}
		s.notifyUser(t.CurrentOwnerID, "TRANSFER_EXPIRED", map[string]interface{}{
			"transfer_id": t.ID.String(),
			"expired_at":  t.ExpiresAt.Format(time.RFC3339),
		})
		handled++
	}
	return handled, nil
}

func (s *Service) publish(eventType string, t *domain.OwnershipTransfer) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, t)
	}
}

func (s *Service) notifyUser(userID uuid.UUID, eventType string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	go func() {
		_ = s.notifier.Notify(context.Background(), userID, eventType, data)
	}()
}

func (s *Service) notifyRecipient(t *domain.OwnershipTransfer, eventType string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if t.NewOwnerID != nil {
		s.notifyUser(*t.NewOwnerID, eventType, data)
		return
	}
	if t.NewOwnerEmail != nil {
		email := *t.NewOwnerEmail
		go func() {
			_ = s.notifier.NotifyEmail(context.Background(), email, eventType, data)
		}()
	}
}
