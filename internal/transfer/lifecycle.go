package transfer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

// Expired reports whether a non-terminal transfer has passed its deadline.
// The stored status is left as is; readers use EffectiveStatus.
func Expired(t *domain.OwnershipTransfer, now time.Time) bool {
	return !t.Status.Terminal() && now.After(t.ExpiresAt)
}

// EffectiveStatus is the status a reader should see: expired transfers read as REJECTED.
func EffectiveStatus(t *domain.OwnershipTransfer, now time.Time) domain.TransferStatus {
	if Expired(t, now) {
		return domain.TransferStatusRejected
	}
	return t.Status
}

// Active reports whether t still blocks another transfer of the same device.
func Active(t *domain.OwnershipTransfer, now time.Time) bool {
	return !t.Status.Terminal() && !Expired(t, now)
}

// Transferable reports whether a device in status s may change hands.
func Transferable(s domain.DeviceStatus) bool {
	return s == domain.DeviceStatusClean || s == domain.DeviceStatusUnknown
}

// IsRecipient reports whether actor is the person the transfer names, by id or email.
func IsRecipient(t *domain.OwnershipTransfer, actor domain.Actor) bool {
	if t.NewOwnerID != nil && *t.NewOwnerID == actor.ID {
		return true
	}
	if t.NewOwnerEmail != nil && actor.Email != "" {
		return strings.EqualFold(strings.TrimSpace(*t.NewOwnerEmail), strings.TrimSpace(actor.Email))
	}
	return false
}

func checkActionable(t *domain.OwnershipTransfer, want domain.TransferStatus, now time.Time) error {
	if Expired(t, now) {
		return errors.ErrTransferExpired
	}
	if t.Status != want {
		return errors.ErrTransferNotActionable
	}
	return nil
}

// Accept moves a PENDING transfer to ACCEPTED. Ownership is not changed yet;
// the accepting actor is pinned as the new owner.
func Accept(t domain.OwnershipTransfer, actor domain.Actor, now time.Time) (domain.OwnershipTransfer, error) {
	if !IsRecipient(&t, actor) {
		return t, errors.ErrNotTransferRecipient
	}
	if err := checkActionable(&t, domain.TransferStatusPending, now); err != nil {
		return t, err
	}
	id := actor.ID
	at := now
	t.Status = domain.TransferStatusAccepted
	t.NewOwnerID = &id
	t.AcceptedAt = &at
	return t, nil
}

// Reject lets the recipient decline a PENDING transfer.
func Reject(t domain.OwnershipTransfer, actor domain.Actor, now time.Time) (domain.OwnershipTransfer, error) {
	if !IsRecipient(&t, actor) {
		return t, errors.ErrNotTransferRecipient
	}
	if err := checkActionable(&t, domain.TransferStatusPending, now); err != nil {
		return t, err
	}
	at := now
	t.Status = domain.TransferStatusRejected
	t.RejectedAt = &at
	return t, nil
}

// Cancel lets the current owner withdraw a transfer that has not completed.
func Cancel(t domain.OwnershipTransfer, actor domain.Actor, now time.Time) (domain.OwnershipTransfer, error) {
	if t.CurrentOwnerID != actor.ID {
		return t, errors.ErrNotDeviceOwner
	}
	if Expired(&t, now) {
		return t, errors.ErrTransferExpired
	}
	if t.Status.Terminal() {
		return t, errors.ErrTransferNotActionable
	}
	at := now
	t.Status = domain.TransferStatusRejected
	t.RejectedAt = &at
	return t, nil
}

// Complete finalises an ACCEPTED transfer. Either party may confirm the handover.
// The caller must reassign the device to the returned owner in the same write.
func Complete(t domain.OwnershipTransfer, actor domain.Actor, now time.Time) (domain.OwnershipTransfer, uuid.UUID, error) {
	if t.CurrentOwnerID != actor.ID && !IsRecipient(&t, actor) {
		return t, uuid.Nil, errors.ErrNotTransferRecipient
	}
	if err := checkActionable(&t, domain.TransferStatusAccepted, now); err != nil {
		return t, uuid.Nil, err
	}
	if t.NewOwnerID == nil {
		return t, uuid.Nil, errors.ErrTransferNotActionable
	}
	at := now
	t.Status = domain.TransferStatusCompleted
	t.CompletedAt = &at
	return t, *t.NewOwnerID, nil
}
