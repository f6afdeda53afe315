// Package refdata serves the reference constants clients need (statuses,
// payment methods, prices, limits) plus registry-wide status counts.
//
// Read returns the cached snapshot immediately. Refresh rebuilds it in the
// background and swaps it in when done, so callers never block on the
// database or on Redis.
package refdata

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"devreg/internal/device"
	"devreg/internal/domain"
	"devreg/pkg/cache"
	"devreg/pkg/config"
	"devreg/pkg/logger"
)

const cacheKey = "refdata:snapshot"

// Snapshot is one immutable view of the reference data.
type Snapshot struct {
	DeviceStatuses   []domain.DeviceStatus                         `json:"device_statuses"`
	OwnerTransitions map[domain.DeviceStatus][]domain.DeviceStatus `json:"owner_transitions"`
	TransferStatuses []domain.TransferStatus                       `json:"transfer_statuses"`
	TransferTypes    []domain.TransferType                         `json:"transfer_types"`
	PaymentMethods   []domain.PaymentMethod                        `json:"payment_methods"`
	PriceUser        decimal.Decimal                               `json:"price_user_registration"`
	PriceAgent       decimal.Decimal                               `json:"price_agent_registration"`
	Currency         string                                        `json:"currency"`
	FreeThreshold    int                                           `json:"free_registration_threshold"`
	TransferTTLHours int                                           `json:"transfer_ttl_hours"`
	MaxMessageLength int                                           `json:"max_owner_message_length"`
	StatusCounts     map[domain.DeviceStatus]int64                 `json:"status_counts,omitempty"`
	RefreshedAt      time.Time                                     `json:"refreshed_at"`
}

// Store persists snapshots so every instance starts warm.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// StatusCounter reports how many devices are in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.DeviceStatus]int64, error)
}

type Service struct {
	cfg        config.RegistryConfig
	store      Store
	counter    StatusCounter
	ttl        time.Duration
	logger     logger.Logger
	current    atomic.Pointer[Snapshot]
	refreshing atomic.Bool
	now        func() time.Time
}

// NewService seeds the cache with the configured constants so Read is
// usable before the first refresh. store and counter may be nil.
func NewService(cfg config.RegistryConfig, store Store, counter StatusCounter, log logger.Logger) *Service {
	s := &Service{
		cfg:     cfg,
		store:   store,
		counter: counter,
		ttl:     cfg.ReferenceCacheTTL,
		logger:  log,
		now:     time.Now,
	}
	s.current.Store(s.constants())
	return s
}

func (s *Service) constants() *Snapshot {
	transitions := make(map[domain.DeviceStatus][]domain.DeviceStatus, len(domain.DeviceStatuses))
	for _, st := range domain.DeviceStatuses {
		transitions[st] = device.AllowedTargets(st)
	}

	return &Snapshot{
		DeviceStatuses:   domain.DeviceStatuses,
		OwnerTransitions: transitions,
		TransferStatuses: []domain.TransferStatus{
			domain.TransferStatusPending,
			domain.TransferStatusAccepted,
			domain.TransferStatusRejected,
			domain.TransferStatusCompleted,
		},
		TransferTypes: []domain.TransferType{
			domain.TransferTypeSale,
			domain.TransferTypeGift,
			domain.TransferTypeOther,
		},
		PaymentMethods: []domain.PaymentMethod{
			domain.PaymentMethodPaystack,
			domain.PaymentMethodWallet,
			domain.PaymentMethodFree,
		},
		PriceUser:        s.cfg.PriceUserRegistration,
		PriceAgent:       s.cfg.PriceAgentRegistration,
		Currency:         s.cfg.Currency,
		FreeThreshold:    s.cfg.FreeRegistrationThreshold,
		TransferTTLHours: int(s.cfg.TransferTTL / time.Hour),
		MaxMessageLength: device.MaxOwnerMessageLength,
		RefreshedAt:      s.now().UTC(),
	}
}

// Read returns the current snapshot without blocking.
func (s *Service) Read() *Snapshot {
	return s.current.Load()
}

// Stale reports whether the current snapshot is older than the cache TTL.
func (s *Service) Stale() bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(s.Read().RefreshedAt) > s.ttl
}

// Hydrate loads a cached snapshot from the store when one exists and is
// fresh; otherwise it waits for a refresh.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.store != nil {
		var cached Snapshot
		err := s.store.Get(ctx, cacheKey, &cached)
		switch {
		case err == nil && (s.ttl <= 0 || s.now().Sub(cached.RefreshedAt) <= s.ttl):
			s.current.Store(&cached)
			return nil
		case err != nil && !stderrors.Is(err, cache.ErrMiss):
			s.logger.Warn("Reference cache read failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return <-s.Refresh(ctx)
}

// Refresh rebuilds the snapshot asynchronously. The returned channel yields
// the outcome once. A refresh already in flight is not duplicated; the
// second caller gets nil immediately.
func (s *Service) Refresh(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if !s.refreshing.CompareAndSwap(false, true) {
		done <- nil
		return done
	}

	go func() {
		defer s.refreshing.Store(false)
		done <- s.rebuild(ctx)
	}()
	return done
}

func (s *Service) rebuild(ctx context.Context) error {
	snap := s.constants()

	if s.counter != nil {
		counts, err := s.counter.CountByStatus(ctx)
		if err != nil {
			s.logger.Error("Reference refresh failed", map[string]interface{}{"error": err.Error()})
			return err
		}
		snap.StatusCounts = counts
	}

	s.current.Store(snap)

	if s.store != nil {
		if err := s.store.Set(ctx, cacheKey, snap, s.ttl); err != nil {
			s.logger.Warn("Reference cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.logger.Debug("Reference data refreshed", map[string]interface{}{"refreshed_at": snap.RefreshedAt})
	return nil
}
