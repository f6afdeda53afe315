package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"devreg/internal/device"
	"devreg/internal/domain"
	"devreg/internal/refdata"
	"devreg/internal/registration"
	"devreg/internal/transfer"
	"devreg/internal/wallet"
)

type MockDeviceService struct {
	mock.Mock
}

func (m *MockDeviceService) UpdateStatus(ctx context.Context, actor domain.Actor, id uuid.UUID, req device.TransitionRequest) (*device.StatusUpdateResult, error) {
	args := m.Called(ctx, actor, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.StatusUpdateResult), args.Error(1)
}

func (m *MockDeviceService) AdminSetStatus(ctx context.Context, admin domain.Actor, id uuid.UUID, status domain.DeviceStatus, reason string) (*device.StatusUpdateResult, error) {
	args := m.Called(ctx, admin, id, status, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.StatusUpdateResult), args.Error(1)
}

func (m *MockDeviceService) Verify(ctx context.Context, raw string) (*device.VerificationResult, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.VerificationResult), args.Error(1)
}

func (m *MockDeviceService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Device, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

func (m *MockDeviceService) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Device, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Device), args.Error(1)
}

func (m *MockDeviceService) History(ctx context.Context, actor domain.Actor, id uuid.UUID, limit, offset int) ([]*domain.StatusChange, error) {
	args := m.Called(ctx, actor, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StatusChange), args.Error(1)
}

type MockRegistrationService struct {
	mock.Mock
}

func (m *MockRegistrationService) Register(ctx context.Context, actor domain.Actor, req *registration.RegisterRequest) (*registration.Result, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registration.Result), args.Error(1)
}

func (m *MockRegistrationService) ConfirmPayment(ctx context.Context, reference string) (*domain.Registration, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationService) Renew(ctx context.Context, actor domain.Actor, deviceID uuid.UUID, req *registration.RenewRequest) (*registration.Result, error) {
	args := m.Called(ctx, actor, deviceID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registration.Result), args.Error(1)
}

func (m *MockRegistrationService) AgentStats(ctx context.Context, agentID uuid.UUID) (domain.AgentRegistrationStats, error) {
	args := m.Called(ctx, agentID)
	return args.Get(0).(domain.AgentRegistrationStats), args.Error(1)
}

func (m *MockRegistrationService) Registrations(ctx context.Context, deviceID uuid.UUID) ([]*domain.Registration, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Registration), args.Error(1)
}

type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) view(args mock.Arguments) (*transfer.View, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.View), args.Error(1)
}

func (m *MockTransferService) Initiate(ctx context.Context, actor domain.Actor, req *transfer.InitiateRequest) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, req))
}

func (m *MockTransferService) Accept(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, id))
}

func (m *MockTransferService) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, id))
}

func (m *MockTransferService) Cancel(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, id))
}

func (m *MockTransferService) Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, id))
}

func (m *MockTransferService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*transfer.View, error) {
	return m.view(m.Called(ctx, actor, id))
}

func (m *MockTransferService) ListIncoming(ctx context.Context, actor domain.Actor, limit, offset int) ([]*transfer.View, error) {
	args := m.Called(ctx, actor, limit, offset)
	return args.Get(0).([]*transfer.View), args.Error(1)
}

func (m *MockTransferService) ListOutgoing(ctx context.Context, actor domain.Actor, limit, offset int) ([]*transfer.View, error) {
	args := m.Called(ctx, actor, limit, offset)
	return args.Get(0).([]*transfer.View), args.Error(1)
}

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) Balance(ctx context.Context, agentID uuid.UUID) (*wallet.BalanceResponse, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.BalanceResponse), args.Error(1)
}

func (m *MockWalletService) Fund(ctx context.Context, admin domain.Actor, req *wallet.FundRequest) (*wallet.BalanceResponse, error) {
	args := m.Called(ctx, admin, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.BalanceResponse), args.Error(1)
}

type MockNotificationLogs struct {
	mock.Mock
}

func (m *MockNotificationLogs) FindAll(ctx context.Context, limit, offset int) ([]*domain.NotificationLog, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*domain.NotificationLog), args.Error(1)
}

func (m *MockNotificationLogs) CountAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type stubReference struct {
	snap      *refdata.Snapshot
	stale     bool
	refreshed chan struct{}
}

func (s *stubReference) Read() *refdata.Snapshot { return s.snap }
func (s *stubReference) Stale() bool             { return s.stale }

func (s *stubReference) Refresh(ctx context.Context) <-chan error {
	close(s.refreshed)
	done := make(chan error, 1)
	done <- nil
	return done
}
