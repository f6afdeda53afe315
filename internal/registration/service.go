// Package registration creates devices and their registration records, and
// settles the fee each registration carries.
package registration

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"devreg/internal/accounting"
	"devreg/internal/auth"
	"devreg/internal/device"
	"devreg/internal/domain"
	"devreg/internal/imei"
	"devreg/pkg/config"
	"devreg/pkg/errors"
	"devreg/pkg/logger"
)

// Plan is everything one registration writes. The repository applies it in a
// single transaction: owner account, device, registration row and, when the
// fee settles at creation, the wallet debit or free quota consumption.
type Plan struct {
	NewOwner     *domain.User
	Device       *domain.Device
	Registration *domain.Registration
	Threshold    int
}

type Repository interface {
	// Create applies plan atomically. A wallet debit that would overdraw
	// returns errors.ErrInsufficientBalance; a free registration whose quota
	// was consumed concurrently returns errors.ErrNoFreeQuota; an IMEI already
	// used in either slot of another device returns
	// errors.ErrDeviceAlreadyRegistered; a second unpaid registration for the
	// same device returns errors.ErrRenewalPending.
	Create(ctx context.Context, plan *Plan) error
	FindByReference(ctx context.Context, reference string) (*domain.Registration, error)
	FindLatestByDevice(ctx context.Context, deviceID uuid.UUID) (*domain.Registration, error)
	FindByDevice(ctx context.Context, deviceID uuid.UUID) ([]*domain.Registration, error)
	// Settle marks a pending registration settled and credits the agent's
	// paid count. It returns errors.ErrPaymentAlreadySettled when another
	// confirmation got there first.
	Settle(ctx context.Context, reg *domain.Registration) error
}

type DeviceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Device, error)
	FindByIMEI(ctx context.Context, imei string) (*domain.Device, error)
}

type AgentRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error)
}

// Accounts finds or builds the owner account for third-party registrations.
type Accounts interface {
	FindOwner(ctx context.Context, email string) (*domain.User, error)
	NewOwner(details auth.OwnerDetails) (*domain.User, string, error)
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
	agentRepo  AgentRepository
	accounts   Accounts
	notifier   Notifier
	publisher  Publisher
	policy     accounting.Policy
	cfg        config.RegistryConfig
	logger     logger.Logger
	now        func() time.Time
}

func NewService(
	repo Repository,
	deviceRepo DeviceRepository,
	agentRepo AgentRepository,
	accounts Accounts,
	notifier Notifier,
	publisher Publisher,
	cfg config.RegistryConfig,
	log logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		deviceRepo: deviceRepo,
		agentRepo:  agentRepo,
		accounts:   accounts,
		notifier:   notifier,
		publisher:  publisher,
		policy:     accounting.NewPolicy(cfg),
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

type RegisterRequest struct {
	IMEI1             string              `json:"imei1" validate:"required,imei"`
	IMEI2             *string             `json:"imei2,omitempty" validate:"omitempty,imei"`
	Brand             string              `json:"brand" validate:"required,max=100"`
	Model             string              `json:"model" validate:"max=100"`
	Status            domain.DeviceStatus `json:"status,omitempty" validate:"omitempty,device_status"`
	OwnerMessage      *string             `json:"owner_message,omitempty"`
	OwnerContactPhone *string             `json:"owner_contact_phone,omitempty" validate:"omitempty,phone"`
	PaymentMethod     string              `json:"payment_method,omitempty"`
	// Owner is set when an agent registers a device for someone else.
	Owner *auth.OwnerDetails `json:"owner,omitempty"`
}

type Result struct {
	Device       *domain.Device       `json:"device"`
	Registration *domain.Registration `json:"registration"`
	Decision     accounting.Decision  `json:"decision"`
}

// Register validates the device, decides the fee and stores the device with
// its first registration.
func (s *Service) Register(ctx context.Context, actor domain.Actor, req *RegisterRequest) (*Result, error) {
	requested, err := accounting.ParseMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleUser && actor.Role != domain.RoleAgent {
		return nil, errors.ErrInvalidActorRole
	}

	primary := imei.Validate(req.IMEI1)
	if !primary.Valid {
		return nil, errors.ErrInvalidIMEI
	}
	var secondary *string
	if req.IMEI2 != nil && strings.TrimSpace(*req.IMEI2) != "" {
		r := imei.Validate(*req.IMEI2)
		if !r.Valid || r.Normalized == primary.Normalized {
			return nil, errors.ErrInvalidIMEI
		}
		secondary = &r.Normalized
	}

	status, msg, phone, err := device.InitialState(req.Status, req.OwnerMessage, req.OwnerContactPhone)
	if err != nil {
		return nil, err
	}

	lookups := []string{primary.Normalized}
	if secondary != nil {
		lookups = append(lookups, *secondary)
	}
	for _, id := range lookups {
		if _, err := s.deviceRepo.FindByIMEI(ctx, id); err == nil {
			return nil, errors.ErrDeviceAlreadyRegistered
		} else if !stderrors.Is(err, errors.ErrDeviceNotFound) {
			return nil, err
		}
	}

	stats, balance, err := s.agentPosition(ctx, actor)
	if err != nil {
		return nil, err
	}
	decision, err := s.policy.DecidePaymentMethod(actor.Role, stats, balance, requested)
	if err != nil {
		s.logger.Warn("Registration payment rejected", map[string]interface{}{
			"actor_id":  actor.ID,
			"role":      actor.Role,
			"requested": requested,
			"error":     err.Error(),
		})
		return nil, err
	}

	owner, newOwner, tempPassword, err := s.resolveOwner(ctx, actor, req.Owner)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &domain.Device{
		ID:                uuid.New(),
		IMEI1:             primary.Normalized,
		IMEI2:             secondary,
		Brand:             strings.TrimSpace(req.Brand),
		Model:             strings.TrimSpace(req.Model),
		Status:            status,
		OwnerMessage:      msg,
		OwnerContactPhone: phone,
		OwnerID:           owner,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	reg := s.newRegistration(actor, d.ID, owner, decision, now, now.Add(s.cfg.RegistrationValidity))
	reg.AccountCreated = newOwner != nil
	if req.Owner != nil {
		email := strings.ToLower(strings.TrimSpace(req.Owner.Email))
		reg.OwnerEmail = &email
		reg.OwnerPhone = req.Owner.Phone
	}

	plan := &Plan{NewOwner: newOwner, Device: d, Registration: reg, Threshold: s.policy.Threshold}
	if err := s.repo.Create(ctx, plan); err != nil {
		s.logger.Error("Failed to create registration", map[string]interface{}{
			"imei":   d.IMEI1,
			"method": decision.Method,
			"error":  err.Error(),
		})
		return nil, err
	}

	s.logger.Info("Device registered", map[string]interface{}{
		"device_id":       d.ID,
		"registration_id": reg.ID,
		"registered_by":   actor.ID,
		"owner_id":        owner,
		"method":          decision.Method,
		"amount_due":      decision.AmountDue.String(),
		"account_created": reg.AccountCreated,
	})

	if s.publisher != nil {
		s.publisher.Publish("registration.created", reg)
	}
	if newOwner != nil && s.notifier != nil {
		go func(email string) {
			_ = s.notifier.NotifyEmail(context.Background(), email, "ACCOUNT_CREATED", map[string]interface{}{
				"imei":               d.IMEI1,
				"brand":              d.Brand,
				"temporary_password": tempPassword,
			})
		}(newOwner.Email)
	}

	return &Result{Device: d, Registration: reg, Decision: decision}, nil
}

// ConfirmPayment settles a gateway registration once the payment provider
// reports success. Confirming an already settled reference returns the
// stored registration unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, reference string) (*domain.Registration, error) {
	reg, err := s.repo.FindByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if reg.PaymentStatus == domain.PaymentStatusSettled {
		return reg, nil
	}

	settledAt := s.now().UTC()
	reg.PaymentStatus = domain.PaymentStatusSettled
	reg.SettledAt = &settledAt

	if err := s.repo.Settle(ctx, reg); err != nil {
		if stderrors.Is(err, errors.ErrPaymentAlreadySettled) {
			return s.repo.FindByReference(ctx, reg.PaymentReference)
		}
		return nil, err
	}

	s.logger.Info("Registration payment confirmed", map[string]interface{}{
		"registration_id": reg.ID,
		"reference":       reg.PaymentReference,
		"amount":          reg.AmountDue.String(),
	})
	if s.publisher != nil {
		s.publisher.Publish("registration.settled", reg)
	}
	return reg, nil
}

type RenewRequest struct {
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Renew adds a registration that extends the device's coverage by one
// validity period from the later of now and the current expiry. It is
// refused while the latest registration is still awaiting payment.
func (s *Service) Renew(ctx context.Context, actor domain.Actor, deviceID uuid.UUID, req *RenewRequest) (*Result, error) {
	requested, err := accounting.ParseMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	d, err := s.deviceRepo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.FindLatestByDevice(ctx, deviceID)
	if err != nil && !stderrors.Is(err, errors.ErrRegistrationMissing) {
		return nil, err
	}

	owns := d.OwnerID == actor.ID
	registeredIt := latest != nil && latest.RegisteredBy == actor.ID && actor.Role == domain.RoleAgent
	if !owns && !registeredIt {
		return nil, errors.ErrNotDeviceOwner
	}
	// Coverage only extends from a paid registration.
	if latest != nil && latest.PaymentStatus != domain.PaymentStatusSettled {
		return nil, errors.ErrRenewalPending
	}

	stats, balance, err := s.agentPosition(ctx, actor)
	if err != nil {
		return nil, err
	}
	decision, err := s.policy.DecidePaymentMethod(actor.Role, stats, balance, requested)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := now
	if latest != nil && latest.ExpiryDate.After(now) {
		from = latest.ExpiryDate
	}

	reg := s.newRegistration(actor, d.ID, d.OwnerID, decision, now, from.Add(s.cfg.RegistrationValidity))
	reg.IsRenewal = true

	if err := s.repo.Create(ctx, &Plan{Registration: reg, Threshold: s.policy.Threshold}); err != nil {
		return nil, err
	}

	s.logger.Info("Device registration renewed", map[string]interface{}{
		"device_id":       d.ID,
		"registration_id": reg.ID,
		"expiry_date":     reg.ExpiryDate,
		"method":          decision.Method,
	})

	return &Result{Device: d, Registration: reg, Decision: decision}, nil
}

// AgentStats reports an agent's paid and free registration counters.
func (s *Service) AgentStats(ctx context.Context, agentID uuid.UUID) (domain.AgentRegistrationStats, error) {
	agent, err := s.agentRepo.FindByUserID(ctx, agentID)
	if err != nil {
		return domain.AgentRegistrationStats{}, err
	}
	return accounting.Stats(agent, s.policy.Threshold), nil
}

// Registrations lists a device's registration chain, newest first.
func (s *Service) Registrations(ctx context.Context, deviceID uuid.UUID) ([]*domain.Registration, error) {
	return s.repo.FindByDevice(ctx, deviceID)
}

func (s *Service) agentPosition(ctx context.Context, actor domain.Actor) (domain.AgentRegistrationStats, decimal.Decimal, error) {
	if actor.Role != domain.RoleAgent {
		return domain.AgentRegistrationStats{}, decimal.Zero, nil
	}
	agent, err := s.agentRepo.FindByUserID(ctx, actor.ID)
	if err != nil {
		return domain.AgentRegistrationStats{}, decimal.Zero, err
	}
	return accounting.Stats(agent, s.policy.Threshold), agent.WalletBalance, nil
}

// resolveOwner returns who will own the device. Users always own what they
// register. Agents own it unless they name an owner, whose account is
// created when it does not exist yet.
func (s *Service) resolveOwner(ctx context.Context, actor domain.Actor, details *auth.OwnerDetails) (uuid.UUID, *domain.User, string, error) {
	if actor.Role != domain.RoleAgent || details == nil || strings.TrimSpace(details.Email) == "" {
		return actor.ID, nil, "", nil
	}

	existing, err := s.accounts.FindOwner(ctx, details.Email)
	if err == nil {
		return existing.ID, nil, "", nil
	}
	if !stderrors.Is(err, errors.ErrUserNotFound) {
		return uuid.Nil, nil, "", err
	}

	user, temp, err := s.accounts.NewOwner(*details)
	if err != nil {
		return uuid.Nil, nil, "", err
	}
	return user.ID, user, temp, nil
}

func (s *Service) newRegistration(actor domain.Actor, deviceID, owner uuid.UUID, decision accounting.Decision, now, expiry time.Time) *domain.Registration {
	regType := domain.RegistrationTypeUser
	if actor.Role == domain.RoleAgent {
		regType = domain.RegistrationTypeAgent
	}

	reg := &domain.Registration{
		ID:                 uuid.New(),
		DeviceID:           deviceID,
		RegisteredBy:       actor.ID,
		OwnerID:            owner,
		RegistrationType:   regType,
		PaymentMethod:      decision.Method,
		AmountDue:          decision.AmountDue,
		Currency:           s.cfg.Currency,
		PaymentReference:   newReference(now),
		PaymentStatus:      domain.PaymentStatusPending,
		IsFreeRegistration: decision.Free(),
		ExpiryDate:         expiry,
		CreatedAt:          now,
	}
	if decision.SettlesImmediately() {
		settledAt := now
		reg.PaymentStatus = domain.PaymentStatusSettled
		reg.SettledAt = &settledAt
	}
	return reg
}

func newReference(now time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("REG-%s-%s", now.Format("20060102"), strings.ToUpper(id[:12]))
}
