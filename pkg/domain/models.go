package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies what an authenticated actor is allowed to do.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// User represents a registry account holder
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Role         Role      `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

type DeviceStatus string

const (
	DeviceStatusClean   DeviceStatus = "CLEAN"
	DeviceStatusStolen  DeviceStatus = "STOLEN"
	DeviceStatusLost    DeviceStatus = "LOST"
	DeviceStatusBlocked DeviceStatus = "BLOCKED"
	DeviceStatusUnknown DeviceStatus = "UNKNOWN"
)

// DeviceStatuses lists every status in display order.
var DeviceStatuses = []DeviceStatus{
	DeviceStatusClean,
	DeviceStatusStolen,
	DeviceStatusLost,
	DeviceStatusBlocked,
	DeviceStatusUnknown,
}

// Valid reports whether s is a known status.
func (s DeviceStatus) Valid() bool {
	for _, known := range DeviceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Flagged reports whether finders should see the owner's message.
func (s DeviceStatus) Flagged() bool {
	return s == DeviceStatusStolen || s == DeviceStatusLost
}

// Device is an identity record keyed by its primary IMEI
type Device struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	IMEI1             string       `json:"imei1" db:"imei1"`
	IMEI2             *string      `json:"imei2,omitempty" db:"imei2"`
	Brand             string       `json:"brand" db:"brand"`
	Model             string       `json:"model" db:"model"`
	Status            DeviceStatus `json:"status" db:"status"`
	OwnerMessage      *string      `json:"owner_message,omitempty" db:"owner_message"`
	OwnerContactPhone *string      `json:"owner_contact_phone,omitempty" db:"owner_contact_phone"`
	OwnerID           uuid.UUID    `json:"owner_id" db:"owner_id"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// StatusChange is the audit record written for every applied status transition
type StatusChange struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	DeviceID     uuid.UUID    `json:"device_id" db:"device_id"`
	FromStatus   DeviceStatus `json:"from_status" db:"from_status"`
	ToStatus     DeviceStatus `json:"to_status" db:"to_status"`
	ChangedBy    uuid.UUID    `json:"changed_by" db:"changed_by"`
	OwnerMessage *string      `json:"owner_message,omitempty" db:"owner_message"`
	Metadata     Metadata     `json:"metadata" db:"metadata"`
	ChangedAt    time.Time    `json:"changed_at" db:"changed_at"`
}

type RegistrationType string

const (
	RegistrationTypeUser  RegistrationType = "USER"
	RegistrationTypeAgent RegistrationType = "AGENT"
)

type PaymentMethod string

const (
	PaymentMethodPaystack PaymentMethod = "paystack"
	PaymentMethodWallet   PaymentMethod = "wallet"
	PaymentMethodFree     PaymentMethod = "free"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSettled PaymentStatus = "settled"
)

// Registration is one link in a device's registration chain
type Registration struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	DeviceID           uuid.UUID        `json:"device_id" db:"device_id"`
	RegisteredBy       uuid.UUID        `json:"registered_by" db:"registered_by"`
	OwnerID            uuid.UUID        `json:"owner_id" db:"owner_id"`
	RegistrationType   RegistrationType `json:"registration_type" db:"registration_type"`
	PaymentMethod      PaymentMethod    `json:"payment_method" db:"payment_method"`
	AmountDue          decimal.Decimal  `json:"amount_due" db:"amount_due"`
	Currency           string           `json:"currency" db:"currency"`
	PaymentReference   string           `json:"payment_reference" db:"payment_reference"`
	PaymentStatus      PaymentStatus    `json:"payment_status" db:"payment_status"`
	IsFreeRegistration bool             `json:"is_free_registration" db:"is_free_registration"`
	ExpiryDate         time.Time        `json:"expiry_date" db:"expiry_date"`
	AccountCreated     bool             `json:"account_created" db:"account_created"`
	OwnerEmail         *string          `json:"owner_email,omitempty" db:"owner_email"`
	OwnerPhone         *string          `json:"owner_phone,omitempty" db:"owner_phone"`
	IsRenewal          bool             `json:"is_renewal" db:"is_renewal"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	SettledAt          *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusAccepted  TransferStatus = "ACCEPTED"
	TransferStatusRejected  TransferStatus = "REJECTED"
	TransferStatusCompleted TransferStatus = "COMPLETED"
)

// Terminal reports whether no further transition is possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusRejected || s == TransferStatusCompleted
}

type TransferType string

const (
	TransferTypeSale  TransferType = "SALE"
	TransferTypeGift  TransferType = "GIFT"
	TransferTypeOther TransferType = "OTHER"
)

// OwnershipTransfer tracks a pending change of device owner
type OwnershipTransfer struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	DeviceID         uuid.UUID      `json:"device_id" db:"device_id"`
	CurrentOwnerID   uuid.UUID      `json:"current_owner_id" db:"current_owner_id"`
	NewOwnerID       *uuid.UUID     `json:"new_owner_id,omitempty" db:"new_owner_id"`
	NewOwnerEmail    *string        `json:"new_owner_email,omitempty" db:"new_owner_email"`
	TransferMessage  *string        `json:"transfer_message,omitempty" db:"transfer_message"`
	TransferType     TransferType   `json:"transfer_type" db:"transfer_type"`
	Status           TransferStatus `json:"status" db:"status"`
	InitiatedAt      time.Time      `json:"initiated_at" db:"initiated_at"`
	AcceptedAt       *time.Time     `json:"accepted_at,omitempty" db:"accepted_at"`
	RejectedAt       *time.Time     `json:"rejected_at,omitempty" db:"rejected_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	ExpiresAt        time.Time      `json:"expires_at" db:"expires_at"`
	ExpiryNotifiedAt *time.Time     `json:"expiry_notified_at,omitempty" db:"expiry_notified_at"`
}

// Agent carries the wallet and quota counters of an agent account
type Agent struct {
	UserID                uuid.UUID       `json:"user_id" db:"user_id"`
	WalletBalance         decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
	PaidRegistrations     int             `json:"paid_registrations" db:"paid_registrations"`
	FreeRegistrationsUsed int             `json:"free_registrations_used" db:"free_registrations_used"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// AgentRegistrationStats is derived from Agent counters, never stored.
type AgentRegistrationStats struct {
	PaidRegistrations       int  `json:"paid_registrations"`
	FreeRegistrationsEarned int  `json:"free_registrations_earned"`
	FreeRegistrationsUsed   int  `json:"free_registrations_used"`
	HasFreeRegistrations    bool `json:"has_free_registrations"`
}

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// NotificationLog records one delivery attempt to a user.
type NotificationLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Recipient string     `json:"recipient" db:"recipient"`
	EventType string     `json:"event_type" db:"event_type"`
	Channel   string     `json:"channel" db:"channel"`
	Subject   string     `json:"subject" db:"subject"`
	Delivered bool       `json:"delivered" db:"delivered"`
	Error     *string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
