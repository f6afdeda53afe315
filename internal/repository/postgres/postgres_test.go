package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devreg/internal/domain"
	"devreg/internal/registration"
	"devreg/pkg/errors"
)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		t.Skip("Skipping integration test: database not available")
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, MigrateUp(db.DB))
	return db
}

func strPtr(s string) *string {
	return &s
}

func newUser(t *testing.T, db *sqlx.DB, role domain.Role) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(uuid.NewString()[:8]) + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func newAgent(t *testing.T, db *sqlx.DB, balance int64, paid int) *domain.User {
	t.Helper()
	u := newUser(t, db, domain.RoleAgent)
	now := time.Now().UTC()
	require.NoError(t, NewAgentRepository(db).Create(context.Background(), &domain.Agent{
		UserID:            u.ID,
		WalletBalance:     decimal.NewFromInt(balance),
		PaidRegistrations: paid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
	return u
}

// uniqueIMEI returns a checksum-valid IMEI that is unlikely to collide
// between runs.
func uniqueIMEI() string {
	digits := make([]int, 14)
	seed := uuid.New()
	for i := range digits {
		digits[i] = int(seed[i]) % 10
	}
	sum := 0
	for i := 13; i >= 0; i-- {
		d := digits[i]
		if (13-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	b.WriteByte(byte('0' + (10-sum%10)%10))
	return b.String()
}

func newPlan(owner, registeredBy uuid.UUID, regType domain.RegistrationType, method domain.PaymentMethod, amount int64) *registration.Plan {
	now := time.Now().UTC()
	d := &domain.Device{
		ID:        uuid.New(),
		IMEI1:     uniqueIMEI(),
		Brand:     "Apple",
		Model:     "iPhone 13",
		Status:    domain.DeviceStatusClean,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	status := domain.PaymentStatusSettled
	if method == domain.PaymentMethodPaystack {
		status = domain.PaymentStatusPending
	}
	return &registration.Plan{
		Device: d,
		Registration: &domain.Registration{
			ID:                 uuid.New(),
			DeviceID:           d.ID,
			RegisteredBy:       registeredBy,
			OwnerID:            owner,
			RegistrationType:   regType,
			PaymentMethod:      method,
			AmountDue:          decimal.NewFromInt(amount),
			Currency:           "NGN",
			PaymentReference:   "REG-TEST-" + strings.ToUpper(uuid.NewString()[:12]),
			PaymentStatus:      status,
			IsFreeRegistration: method == domain.PaymentMethodFree,
			ExpiryDate:         now.AddDate(1, 0, 0),
			CreatedAt:          now,
		},
		Threshold: 10,
	}
}

func TestRegistrationRepository_WalletDebit(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(db)
	agents := NewAgentRepository(db)

	agent := newAgent(t, db, 1500, 0)

	require.NoError(t, repo.Create(ctx, newPlan(agent.ID, agent.ID, domain.RegistrationTypeAgent, domain.PaymentMethodWallet, 1000)))

	a, err := agents.FindByUserID(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, a.WalletBalance.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, a.PaidRegistrations)

	plan := newPlan(agent.ID, agent.ID, domain.RegistrationTypeAgent, domain.PaymentMethodWallet, 1000)
	assert.ErrorIs(t, repo.Create(ctx, plan), errors.ErrInsufficientBalance)

	_, err = NewDeviceRepository(db).FindByID(ctx, plan.Device.ID)
	assert.ErrorIs(t, err, errors.ErrDeviceNotFound, "failed plan must not leave a device behind")
}

func TestRegistrationRepository_FreeQuota(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(db)

	agent := newAgent(t, db, 0, 10)

	require.NoError(t, repo.Create(ctx, newPlan(agent.ID, agent.ID, domain.RegistrationTypeAgent, domain.PaymentMethodFree, 0)))
	err := repo.Create(ctx, newPlan(agent.ID, agent.ID, domain.RegistrationTypeAgent, domain.PaymentMethodFree, 0))
	assert.ErrorIs(t, err, errors.ErrNoFreeQuota)
}

func TestRegistrationRepository_DuplicateIMEIAndSettle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(db)

	user := newUser(t, db, domain.RoleUser)
	plan := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, repo.Create(ctx, plan))

	dup := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	dup.Device.IMEI1 = plan.Device.IMEI1
	assert.ErrorIs(t, repo.Create(ctx, dup), errors.ErrDeviceAlreadyRegistered)

	reg, err := repo.FindByReference(ctx, plan.Registration.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, reg.PaymentStatus)

	settled := time.Now().UTC()
	reg.SettledAt = &settled
	require.NoError(t, repo.Settle(ctx, reg))
	assert.ErrorIs(t, repo.Settle(ctx, reg), errors.ErrPaymentAlreadySettled)
}

func TestRegistrationRepository_OnePendingPerDevice(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(db)

	user := newUser(t, db, domain.RoleUser)
	plan := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, repo.Create(ctx, plan))

	renewal := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	renewal.Device = nil
	renewal.Registration.DeviceID = plan.Device.ID
	renewal.Registration.IsRenewal = true
	assert.ErrorIs(t, repo.Create(ctx, renewal), errors.ErrRenewalPending)

	settled := time.Now().UTC()
	plan.Registration.SettledAt = &settled
	require.NoError(t, repo.Settle(ctx, plan.Registration))
	assert.NoError(t, repo.Create(ctx, renewal))
}

func TestRegistrationRepository_IMEIUniqueAcrossSlots(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewRegistrationRepository(db)

	user := newUser(t, db, domain.RoleUser)
	first := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, repo.Create(ctx, first))

	second := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	second.Device.IMEI2 = strPtr(first.Device.IMEI1)
	assert.ErrorIs(t, repo.Create(ctx, second), errors.ErrDeviceAlreadyRegistered)

	found, err := NewDeviceRepository(db).FindByIMEI(ctx, first.Device.IMEI1)
	require.NoError(t, err)
	assert.Equal(t, first.Device.ID, found.ID)
}

func TestDeviceRepository_OptimisticStatusWrite(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	devices := NewDeviceRepository(db)

	user := newUser(t, db, domain.RoleUser)
	plan := newPlan(user.ID, user.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, NewRegistrationRepository(db).Create(ctx, plan))

	current, err := devices.FindByID(ctx, plan.Device.ID)
	require.NoError(t, err)
	stale := current.UpdatedAt

	next := *current
	next.Status = domain.DeviceStatusStolen
	next.OwnerMessage = strPtr("Reward for return")
	next.UpdatedAt = time.Now().UTC()
	change := &domain.StatusChange{
		ID:         uuid.New(),
		DeviceID:   current.ID,
		FromStatus: current.Status,
		ToStatus:   next.Status,
		ChangedBy:  user.ID,
		ChangedAt:  next.UpdatedAt,
	}
	require.NoError(t, devices.ApplyStatusChange(ctx, &next, change, stale))

	again := next
	again.Status = domain.DeviceStatusLost
	change2 := *change
	change2.ID = uuid.New()
	assert.ErrorIs(t, devices.ApplyStatusChange(ctx, &again, &change2, stale), errors.ErrConcurrentUpdate)

	history, err := devices.FindStatusHistory(ctx, current.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.DeviceStatusStolen, history[0].ToStatus)

	found, err := devices.FindByIMEI(ctx, plan.Device.IMEI1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusStolen, found.Status)
}

func TestTransferRepository_ActiveAndComplete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	transfers := NewTransferRepository(db)

	seller := newUser(t, db, domain.RoleUser)
	buyer := newUser(t, db, domain.RoleUser)
	plan := newPlan(seller.ID, seller.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, NewRegistrationRepository(db).Create(ctx, plan))

	now := time.Now().UTC()
	tr := &domain.OwnershipTransfer{
		ID:             uuid.New(),
		DeviceID:       plan.Device.ID,
		CurrentOwnerID: seller.ID,
		NewOwnerEmail:  strPtr(buyer.Email),
		TransferType:   domain.TransferTypeSale,
		Status:         domain.TransferStatusPending,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, transfers.CreateActive(ctx, tr, now))

	second := *tr
	second.ID = uuid.New()
	assert.ErrorIs(t, transfers.CreateActive(ctx, &second, now), errors.ErrTransferAlreadyActive)

	incoming, err := transfers.FindIncoming(ctx, buyer.ID, buyer.Email, 10, 0)
	require.NoError(t, err)
	require.Len(t, incoming, 1)

	accepted := *tr
	acceptedAt := now.Add(time.Minute)
	accepted.Status = domain.TransferStatusAccepted
	accepted.NewOwnerID = &buyer.ID
	accepted.AcceptedAt = &acceptedAt
	require.NoError(t, transfers.UpdateStatus(ctx, &accepted, domain.TransferStatusPending))
	assert.ErrorIs(t, transfers.UpdateStatus(ctx, &accepted, domain.TransferStatusPending), errors.ErrTransferNotActionable)

	completedAt := now.Add(2 * time.Minute)
	accepted.Status = domain.TransferStatusCompleted
	accepted.CompletedAt = &completedAt
	require.NoError(t, transfers.CompleteWithOwnerChange(ctx, &accepted, buyer.ID))

	d, err := NewDeviceRepository(db).FindByID(ctx, plan.Device.ID)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, d.OwnerID)

	_, err = transfers.FindActiveByDevice(ctx, plan.Device.ID, now)
	assert.ErrorIs(t, err, errors.ErrTransferNotFound)
}

func TestTransferRepository_ExpiredTransferDoesNotBlock(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	transfers := NewTransferRepository(db)

	seller := newUser(t, db, domain.RoleUser)
	plan := newPlan(seller.ID, seller.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, NewRegistrationRepository(db).Create(ctx, plan))

	past := time.Now().UTC().Add(-8 * 24 * time.Hour)
	old := &domain.OwnershipTransfer{
		ID:             uuid.New(),
		DeviceID:       plan.Device.ID,
		CurrentOwnerID: seller.ID,
		NewOwnerEmail:  strPtr("late@example.com"),
		TransferType:   domain.TransferTypeOther,
		Status:         domain.TransferStatusPending,
		InitiatedAt:    past,
		ExpiresAt:      past.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, transfers.CreateActive(ctx, old, past))

	now := time.Now().UTC()
	expired, err := transfers.FindExpiredUnnotified(ctx, now, 100)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, e := range expired {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, old.ID)
	require.NoError(t, transfers.MarkExpiryNotified(ctx, old.ID, now))

	fresh := *old
	fresh.ID = uuid.New()
	fresh.InitiatedAt = now
	fresh.ExpiresAt = now.Add(7 * 24 * time.Hour)
	assert.NoError(t, transfers.CreateActive(ctx, &fresh, now))
}

func TestTransferRepository_CompleteRefusedForStolenDevice(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	transfers := NewTransferRepository(db)

	seller := newUser(t, db, domain.RoleUser)
	buyer := newUser(t, db, domain.RoleUser)
	plan := newPlan(seller.ID, seller.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, NewRegistrationRepository(db).Create(ctx, plan))

	now := time.Now().UTC()
	acceptedAt := now.Add(time.Minute)
	tr := &domain.OwnershipTransfer{
		ID:             uuid.New(),
		DeviceID:       plan.Device.ID,
		CurrentOwnerID: seller.ID,
		NewOwnerID:     &buyer.ID,
		TransferType:   domain.TransferTypeSale,
		Status:         domain.TransferStatusPending,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, transfers.CreateActive(ctx, tr, now))
	tr.Status = domain.TransferStatusAccepted
	tr.AcceptedAt = &acceptedAt
	require.NoError(t, transfers.UpdateStatus(ctx, tr, domain.TransferStatusPending))

	_, err := db.ExecContext(ctx, `UPDATE devices SET status = 'STOLEN', owner_message = 'Reward for return' WHERE id = $1`, plan.Device.ID)
	require.NoError(t, err)

	completedAt := now.Add(2 * time.Minute)
	tr.Status = domain.TransferStatusCompleted
	tr.CompletedAt = &completedAt
	assert.ErrorIs(t, transfers.CompleteWithOwnerChange(ctx, tr, buyer.ID), errors.ErrDeviceNotTransferable)

	d, err := NewDeviceRepository(db).FindByID(ctx, plan.Device.ID)
	require.NoError(t, err)
	assert.Equal(t, seller.ID, d.OwnerID)

	stored, err := transfers.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusAccepted, stored.Status)
}

func TestTransferRepository_ActiveUntilExpiryInstant(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	transfers := NewTransferRepository(db)

	seller := newUser(t, db, domain.RoleUser)
	plan := newPlan(seller.ID, seller.ID, domain.RegistrationTypeUser, domain.PaymentMethodPaystack, 1500)
	require.NoError(t, NewRegistrationRepository(db).Create(ctx, plan))

	expiresAt := dbTime(time.Now().Add(time.Hour))
	tr := &domain.OwnershipTransfer{
		ID:             uuid.New(),
		DeviceID:       plan.Device.ID,
		CurrentOwnerID: seller.ID,
		NewOwnerEmail:  strPtr("buyer@example.com"),
		TransferType:   domain.TransferTypeOther,
		Status:         domain.TransferStatusPending,
		InitiatedAt:    expiresAt.Add(-7 * 24 * time.Hour),
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, transfers.CreateActive(ctx, tr, tr.InitiatedAt))

	active, err := transfers.FindActiveByDevice(ctx, plan.Device.ID, expiresAt)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, active.ID)

	second := *tr
	second.ID = uuid.New()
	assert.ErrorIs(t, transfers.CreateActive(ctx, &second, expiresAt), errors.ErrTransferAlreadyActive)

	_, err = transfers.FindActiveByDevice(ctx, plan.Device.ID, expiresAt.Add(time.Microsecond))
	assert.ErrorIs(t, err, errors.ErrTransferNotFound)
}

func TestAgentRepository_CreditOncePerReference(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	agents := NewAgentRepository(db)

	agent := newAgent(t, db, 0, 0)
	ref := "FUND-" + uuid.NewString()

	require.NoError(t, agents.Credit(ctx, agent.ID, decimal.NewFromInt(5000), ref))
	assert.ErrorIs(t, agents.Credit(ctx, agent.ID, decimal.NewFromInt(5000), ref), errors.ErrDuplicateRequest)

	a, err := agents.FindByUserID(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, a.WalletBalance.Equal(decimal.NewFromInt(5000)))

	assert.ErrorIs(t, agents.Credit(ctx, uuid.New(), decimal.NewFromInt(1), "FUND-"+uuid.NewString()), errors.ErrAgentNotFound)
}

func TestNotificationRepository_CreateAndList(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)

	user := newUser(t, db, domain.RoleUser)
	require.NoError(t, repo.Create(ctx, &domain.NotificationLog{
		ID:        uuid.New(),
		UserID:    &user.ID,
		Recipient: user.Email,
		EventType: "TRANSFER_ACCEPTED",
		Channel:   "EMAIL",
		Subject:   "Transfer accepted",
		Delivered: true,
		CreatedAt: time.Now().UTC(),
	}))

	logs, err := repo.FindByUserID(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Delivered)
}
