package accounting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devreg/internal/domain"
	"devreg/pkg/config"
	"devreg/pkg/errors"
)

func testPolicy() Policy {
	return NewPolicy(config.RegistryConfig{
		PriceUserRegistration:     decimal.NewFromInt(1500),
		PriceAgentRegistration:    decimal.NewFromInt(1000),
		FreeRegistrationThreshold: 10,
		RegistrationValidity:      365 * 24 * time.Hour,
	})
}

func TestStats(t *testing.T) {
	tests := []struct {
		name     string
		paid     int
		used     int
		earned   int
		hasQuota bool
	}{
		{"none", 0, 0, 0, false},
		{"below threshold", 9, 0, 0, false},
		{"exactly threshold", 10, 0, 1, true},
		{"floored", 57, 4, 5, true},
		{"exhausted", 50, 5, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stats(&domain.Agent{PaidRegistrations: tt.paid, FreeRegistrationsUsed: tt.used}, 10)
			assert.Equal(t, tt.earned, s.FreeRegistrationsEarned)
			assert.Equal(t, tt.hasQuota, s.HasFreeRegistrations)
			assert.Equal(t, tt.used, s.FreeRegistrationsUsed)
		})
	}

	assert.Equal(t, domain.AgentRegistrationStats{}, Stats(nil, 10))
}

func TestDecide_UserAlwaysPaystack(t *testing.T) {
	p := testPolicy()

	for _, requested := range []domain.PaymentMethod{"", domain.PaymentMethodWallet, domain.PaymentMethodFree} {
		d, err := p.DecidePaymentMethod(domain.RoleUser, domain.AgentRegistrationStats{HasFreeRegistrations: true}, decimal.NewFromInt(1_000_000), requested)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentMethodPaystack, d.Method)
		assert.True(t, d.AmountDue.Equal(decimal.NewFromInt(1500)))
		assert.False(t, d.SettlesImmediately())
	}
}

func TestDecide_AgentWallet(t *testing.T) {
	p := testPolicy()

	_, err := p.DecidePaymentMethod(domain.RoleAgent, domain.AgentRegistrationStats{}, decimal.NewFromInt(500), domain.PaymentMethodWallet)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	assert.Equal(t, errors.KindQuota, errors.KindOf(err))

	d, err := p.DecidePaymentMethod(domain.RoleAgent, domain.AgentRegistrationStats{}, decimal.NewFromInt(1000), domain.PaymentMethodWallet)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodWallet, d.Method)
	assert.True(t, d.AmountDue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, d.SettlesImmediately())
}

func TestDecide_AgentFree(t *testing.T) {
	p := testPolicy()

	exhausted := Stats(&domain.Agent{PaidRegistrations: 50, FreeRegistrationsUsed: 5}, p.Threshold)
	_, err := p.DecidePaymentMethod(domain.RoleAgent, exhausted, decimal.Zero, domain.PaymentMethodFree)
	assert.ErrorIs(t, err, errors.ErrNoFreeQuota)

	available := Stats(&domain.Agent{PaidRegistrations: 50, FreeRegistrationsUsed: 4}, p.Threshold)
	d, err := p.DecidePaymentMethod(domain.RoleAgent, available, decimal.Zero, domain.PaymentMethodFree)
	require.NoError(t, err)
	assert.True(t, d.Free())
	assert.True(t, d.AmountDue.IsZero())
}

func TestDecide_AgentPaystackDefault(t *testing.T) {
	p := testPolicy()

	d, err := p.DecidePaymentMethod(domain.RoleAgent, domain.AgentRegistrationStats{}, decimal.Zero, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodPaystack, d.Method)
	assert.True(t, d.AmountDue.Equal(decimal.NewFromInt(1000)))
}

func TestDecide_OtherRoles(t *testing.T) {
	p := testPolicy()

	_, err := p.DecidePaymentMethod(domain.RoleAdmin, domain.AgentRegistrationStats{}, decimal.Zero, domain.PaymentMethodPaystack)
	assert.ErrorIs(t, err, errors.ErrInvalidActorRole)

	_, err = p.DecidePaymentMethod("", domain.AgentRegistrationStats{}, decimal.Zero, "")
	assert.ErrorIs(t, err, errors.ErrInvalidActorRole)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Wallet ")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodWallet, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethod(""), m)

	_, err = ParseMethod("cash")
	assert.ErrorIs(t, err, errors.ErrInvalidPayment)
}
