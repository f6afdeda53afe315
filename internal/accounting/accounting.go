// Package accounting decides how a device registration is paid for.
//
// Decisions are pure. Settling a decision (debiting a wallet or consuming a
// free registration) is done by the persistence layer with conditional
// updates, so two concurrent settlements against the same agent cannot both
// succeed on the last unit of balance or quota.
package accounting

import (
	"strings"

	"github.com/shopspring/decimal"

	"devreg/internal/domain"
	"devreg/pkg/config"
	"devreg/pkg/errors"
)

// Prices are the registration fees charged per actor role.
type Prices struct {
	User  decimal.Decimal
	Agent decimal.Decimal
}

// Policy bundles the settings the accounting rules depend on.
type Policy struct {
	Prices    Prices
	Threshold int
}

// NewPolicy reads prices and the free registration threshold from cfg.
func NewPolicy(cfg config.RegistryConfig) Policy {
	return Policy{
		Prices: Prices{
			User:  cfg.PriceUserRegistration,
			Agent: cfg.PriceAgentRegistration,
		},
		Threshold: cfg.FreeRegistrationThreshold,
	}
}

// Decision is the outcome of DecidePaymentMethod.
type Decision struct {
	Method    domain.PaymentMethod `json:"method"`
	AmountDue decimal.Decimal      `json:"amount_due"`
}

// Free reports whether the registration consumes quota instead of money.
func (d Decision) Free() bool { return d.Method == domain.PaymentMethodFree }

// SettlesImmediately reports whether the registration is settled at creation.
func (d Decision) SettlesImmediately() bool { return d.Method != domain.PaymentMethodPaystack }

// Stats derives the quota view of an agent. One free registration is earned
// for every threshold paid registrations.
func Stats(agent *domain.Agent, threshold int) domain.AgentRegistrationStats {
	if agent == nil {
		return domain.AgentRegistrationStats{}
	}
	earned := 0
	if threshold > 0 && agent.PaidRegistrations > 0 {
		earned = agent.PaidRegistrations / threshold
	}
	return domain.AgentRegistrationStats{
		PaidRegistrations:       agent.PaidRegistrations,
		FreeRegistrationsEarned: earned,
		FreeRegistrationsUsed:   agent.FreeRegistrationsUsed,
		HasFreeRegistrations:    earned > agent.FreeRegistrationsUsed,
	}
}

// ParseMethod normalizes a requested payment method. An empty string means
// the caller did not ask for one.
func ParseMethod(raw string) (domain.PaymentMethod, error) {
	m := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case "", domain.PaymentMethodPaystack, domain.PaymentMethodWallet, domain.PaymentMethodFree:
		return m, nil
	}
	return "", errors.ErrInvalidPayment
}

// DecidePaymentMethod picks the payment method and amount due for one
// registration. USER actors always pay through the gateway. AGENT actors may
// pay from their wallet, use an earned free registration, or go through the
// gateway; an empty request defaults to the gateway.
func (p Policy) DecidePaymentMethod(role domain.Role, stats domain.AgentRegistrationStats, balance decimal.Decimal, requested domain.PaymentMethod) (Decision, error) {
	switch role {
	case domain.RoleUser:
		return Decision{Method: domain.PaymentMethodPaystack, AmountDue: p.Prices.User}, nil

	case domain.RoleAgent:
		switch requested {
		case domain.PaymentMethodWallet:
			if balance.LessThan(p.Prices.Agent) {
				return Decision{}, errors.ErrInsufficientBalance
			}
			return Decision{Method: domain.PaymentMethodWallet, AmountDue: p.Prices.Agent}, nil
		case domain.PaymentMethodFree:
			if !stats.HasFreeRegistrations {
				return Decision{}, errors.ErrNoFreeQuota
			}
			return Decision{Method: domain.PaymentMethodFree, AmountDue: decimal.Zero}, nil
		case domain.PaymentMethodPaystack, "":
			return Decision{Method: domain.PaymentMethodPaystack, AmountDue: p.Prices.Agent}, nil
		default:
			return Decision{}, errors.ErrInvalidPayment
		}
	}

	return Decision{}, errors.ErrInvalidActorRole
}
