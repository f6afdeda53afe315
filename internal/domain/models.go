// Package domain re-exports core domain types so internal code can import
// `devreg/internal/domain` while using definitions from `devreg/pkg/domain`.
package domain

import pkg "devreg/pkg/domain"

// User represents a registry account holder.
type User = pkg.User

// Role identifies an actor's capabilities.
type Role = pkg.Role

// Actor is the authenticated caller of an operation.
type Actor = pkg.Actor

// Device is a registered handset.
type Device = pkg.Device

// DeviceStatus is the lifecycle state of a device.
type DeviceStatus = pkg.DeviceStatus

// StatusChange audits an applied status transition.
type StatusChange = pkg.StatusChange

// Registration is one link in a device's registration chain.
type Registration = pkg.Registration

// RegistrationType distinguishes user and agent registrations.
type RegistrationType = pkg.RegistrationType

// PaymentMethod is how a registration is paid for.
type PaymentMethod = pkg.PaymentMethod

// PaymentStatus tracks settlement of a registration.
type PaymentStatus = pkg.PaymentStatus

// OwnershipTransfer tracks a pending change of device owner.
type OwnershipTransfer = pkg.OwnershipTransfer

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus = pkg.TransferStatus

// TransferType describes why ownership changes hands.
type TransferType = pkg.TransferType

// Agent carries wallet and quota counters.
type Agent = pkg.Agent

// AgentRegistrationStats is derived quota information.
type AgentRegistrationStats = pkg.AgentRegistrationStats

// NotificationLog records a delivery attempt.
type NotificationLog = pkg.NotificationLog

// Metadata holds arbitrary key-value metadata.
type Metadata = pkg.Metadata

// DeviceStatuses lists every known status.
var DeviceStatuses = pkg.DeviceStatuses

// Re-exported roles.
const (
	RoleUser  = pkg.RoleUser
	RoleAgent = pkg.RoleAgent
	RoleAdmin = pkg.RoleAdmin
)

// Re-exported device statuses.
const (
	DeviceStatusClean   = pkg.DeviceStatusClean
	DeviceStatusStolen  = pkg.DeviceStatusStolen
	DeviceStatusLost    = pkg.DeviceStatusLost
	DeviceStatusBlocked = pkg.DeviceStatusBlocked
	DeviceStatusUnknown = pkg.DeviceStatusUnknown
)

// Re-exported registration types.
const (
	RegistrationTypeUser  = pkg.RegistrationTypeUser
	RegistrationTypeAgent = pkg.RegistrationTypeAgent
)

// Re-exported payment methods and statuses.
const (
	PaymentMethodPaystack = pkg.PaymentMethodPaystack
	PaymentMethodWallet   = pkg.PaymentMethodWallet
	PaymentMethodFree     = pkg.PaymentMethodFree

	PaymentStatusPending = pkg.PaymentStatusPending
	PaymentStatusSettled = pkg.PaymentStatusSettled
)

// Re-exported transfer statuses and types.
const (
	TransferStatusPending   = pkg.TransferStatusPending
	TransferStatusAccepted  = pkg.TransferStatusAccepted
	TransferStatusRejected  = pkg.TransferStatusRejected
	TransferStatusCompleted = pkg.TransferStatusCompleted

	TransferTypeSale  = pkg.TransferTypeSale
	TransferTypeGift  = pkg.TransferTypeGift
	TransferTypeOther = pkg.TransferTypeOther
)
