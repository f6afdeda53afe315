// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrAgentNotFound       = errors.New("agent not found")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrRegistrationMissing = errors.New("registration not found")
	ErrDuplicateRequest    = errors.New("duplicate request in progress")
)

// Kind groups domain errors by how the caller should react to them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindQuota         Kind = "quota"
	KindAuthorization Kind = "authorization"
)

// DomainError is a rejected operation. State is never changed when one is returned.
type DomainError struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *DomainError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so wrapped or re-built errors compare equal to the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Validation errors
var (
	ErrInvalidIMEI          = &DomainError{Kind: KindValidation, Code: "INVALID_IMEI", Message: "imei must be 15 digits with a valid checksum"}
	ErrOwnerMessageRequired = &DomainError{Kind: KindValidation, Code: "OWNER_MESSAGE_REQUIRED", Message: "owner message is required for stolen or lost devices", Field: "owner_message"}
	ErrOwnerMessageTooLong  = &DomainError{Kind: KindValidation, Code: "OWNER_MESSAGE_TOO_LONG", Message: "owner message must be at most 110 characters", Field: "owner_message"}
	ErrInvalidStatus        = &DomainError{Kind: KindValidation, Code: "INVALID_STATUS", Message: "unknown device status", Field: "status"}
	ErrTransferTargetNeeded = &DomainError{Kind: KindValidation, Code: "TRANSFER_TARGET_REQUIRED", Message: "new owner id or email is required"}
	ErrSelfTransfer         = &DomainError{Kind: KindValidation, Code: "SELF_TRANSFER", Message: "cannot transfer a device to its current owner"}
)

// State errors
var (
	ErrIllegalTransition       = &DomainError{Kind: KindState, Code: "ILLEGAL_TRANSITION", Message: "status transition is not allowed"}
	ErrTransferAlreadyActive   = &DomainError{Kind: KindState, Code: "TRANSFER_ALREADY_ACTIVE", Message: "device already has an active ownership transfer"}
	ErrTransferNotActionable   = &DomainError{Kind: KindState, Code: "TRANSFER_NOT_ACTIONABLE", Message: "transfer is not in a state that allows this action"}
	ErrTransferExpired         = &DomainError{Kind: KindState, Code: "TRANSFER_EXPIRED", Message: "transfer has expired"}
	ErrDeviceNotTransferable   = &DomainError{Kind: KindState, Code: "DEVICE_NOT_TRANSFERABLE", Message: "device status does not allow ownership transfer"}
	ErrDeviceAlreadyRegistered = &DomainError{Kind: KindState, Code: "DEVICE_ALREADY_REGISTERED", Message: "a device with this imei is already registered"}
	ErrConcurrentUpdate        = &DomainError{Kind: KindState, Code: "CONCURRENT_UPDATE", Message: "record was modified by another request"}
	ErrPaymentAlreadySettled   = &DomainError{Kind: KindState, Code: "PAYMENT_ALREADY_SETTLED", Message: "registration payment is already settled"}
	ErrRenewalPending          = &DomainError{Kind: KindState, Code: "REGISTRATION_PAYMENT_PENDING", Message: "latest registration is awaiting payment"}
)

// Quota errors
var (
	ErrInsufficientBalance = &DomainError{Kind: KindQuota, Code: "INSUFFICIENT_BALANCE", Message: "wallet balance is below the registration price"}
	ErrNoFreeQuota         = &DomainError{Kind: KindQuota, Code: "NO_FREE_QUOTA", Message: "no free registrations available"}
	ErrInvalidActorRole    = &DomainError{Kind: KindQuota, Code: "INVALID_ACTOR_ROLE", Message: "actor role cannot register devices"}
	ErrInvalidPayment      = &DomainError{Kind: KindValidation, Code: "INVALID_PAYMENT_METHOD", Message: "payment method is not supported"}
)

// Authorization errors
var (
	ErrNotDeviceOwner       = &DomainError{Kind: KindAuthorization, Code: "NOT_DEVICE_OWNER", Message: "actor is not the current owner of the device"}
	ErrNotTransferRecipient = &DomainError{Kind: KindAuthorization, Code: "NOT_TRANSFER_RECIPIENT", Message: "actor is not the named recipient of the transfer"}
	ErrAdminRequired        = &DomainError{Kind: KindAuthorization, Code: "ADMIN_REQUIRED", Message: "operation requires an administrator"}
)

// KindOf returns the kind of a domain error anywhere in the chain, or "" for system faults.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
