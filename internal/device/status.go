package device

import (
	"strings"
	"unicode/utf8"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

// MaxOwnerMessageLength is the longest message finders are shown.
const MaxOwnerMessageLength = 110

// TransitionRequest is an owner- or agent-initiated status change.
type TransitionRequest struct {
	To                domain.DeviceStatus `json:"status" validate:"required,device_status"`
	OwnerMessage      *string             `json:"owner_message,omitempty"`
	OwnerContactPhone *string             `json:"owner_contact_phone,omitempty" validate:"omitempty,phone"`
}

type transition struct {
	From domain.DeviceStatus
	To   domain.DeviceStatus
}

// ownerTransitions is every change an owner may make. BLOCKED is neither a
// source nor a target; only administrators set it.
var ownerTransitions = map[transition]bool{
	{domain.DeviceStatusClean, domain.DeviceStatusStolen}:   true,
	{domain.DeviceStatusClean, domain.DeviceStatusLost}:     true,
	{domain.DeviceStatusUnknown, domain.DeviceStatusStolen}: true,
	{domain.DeviceStatusUnknown, domain.DeviceStatusLost}:   true,

	// message updates and reclassification
	{domain.DeviceStatusStolen, domain.DeviceStatusStolen}: true,
	{domain.DeviceStatusStolen, domain.DeviceStatusLost}:   true,
	{domain.DeviceStatusLost, domain.DeviceStatusLost}:     true,
	{domain.DeviceStatusLost, domain.DeviceStatusStolen}:   true,

	// recovered
	{domain.DeviceStatusStolen, domain.DeviceStatusClean}: true,
	{domain.DeviceStatusLost, domain.DeviceStatusClean}:   true,
}

// CanTransition reports whether an owner may move a device from one status to another.
func CanTransition(from, to domain.DeviceStatus) bool {
	return ownerTransitions[transition{From: from, To: to}]
}

// AllowedTargets lists the statuses reachable from the given one, in display order.
func AllowedTargets(from domain.DeviceStatus) []domain.DeviceStatus {
	var out []domain.DeviceStatus
	for _, to := range domain.DeviceStatuses {
		if CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

// ValidateOwnerMessage trims msg and checks it is present and short enough.
func ValidateOwnerMessage(msg *string) (string, error) {
	if msg == nil {
		return "", errors.ErrOwnerMessageRequired
	}
	trimmed := strings.TrimSpace(*msg)
	if trimmed == "" {
		return "", errors.ErrOwnerMessageRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxOwnerMessageLength {
		return "", errors.ErrOwnerMessageTooLong
	}
	return trimmed, nil
}

// Transition applies req to current and returns the updated copy. On error the
// returned device is current, untouched.
func Transition(current domain.Device, req TransitionRequest) (domain.Device, error) {
	to := domain.DeviceStatus(strings.ToUpper(string(req.To)))
	if !to.Valid() {
		return current, errors.ErrInvalidStatus
	}
	if !CanTransition(current.Status, to) {
		return current, errors.ErrIllegalTransition
	}

	next := current
	if !to.Flagged() {
		next.Status = to
		next.OwnerMessage = nil
		next.OwnerContactPhone = nil
		return next, nil
	}

	msg, err := ValidateOwnerMessage(req.OwnerMessage)
	if err != nil {
		return current, err
	}
	next.Status = to
	next.OwnerMessage = &msg

	// An update within {STOLEN, LOST} keeps the phone unless a new one is given.
	if req.OwnerContactPhone != nil {
		phone := strings.TrimSpace(*req.OwnerContactPhone)
		if phone == "" {
			next.OwnerContactPhone = nil
		} else {
			next.OwnerContactPhone = &phone
		}
	} else if !current.Status.Flagged() {
		next.OwnerContactPhone = nil
	}
	return next, nil
}

// InitialState resolves the status a new device is created with. An empty
// status means CLEAN. BLOCKED cannot be chosen at registration.
func InitialState(status domain.DeviceStatus, msg, phone *string) (domain.DeviceStatus, *string, *string, error) {
	if status == "" {
		status = domain.DeviceStatusClean
	}
	status = domain.DeviceStatus(strings.ToUpper(string(status)))
	if !status.Valid() {
		return "", nil, nil, errors.ErrInvalidStatus
	}
	if status == domain.DeviceStatusBlocked {
		return "", nil, nil, errors.ErrIllegalTransition
	}
	if !status.Flagged() {
		return status, nil, nil, nil
	}

	m, err := ValidateOwnerMessage(msg)
	if err != nil {
		return "", nil, nil, err
	}
	var p *string
	if phone != nil && strings.TrimSpace(*phone) != "" {
		trimmed := strings.TrimSpace(*phone)
		p = &trimmed
	}
	return status, &m, p, nil
}
