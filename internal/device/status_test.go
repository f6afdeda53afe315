package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devreg/internal/domain"
	"devreg/pkg/errors"
)

func strPtr(s string) *string { return &s }

func cleanDevice() domain.Device {
	return domain.Device{IMEI1: "490154203237518", Brand: "Apple", Status: domain.DeviceStatusClean}
}

func TestTransition_CleanToStolenRequiresMessage(t *testing.T) {
	d := cleanDevice()

	got, err := Transition(d, TransitionRequest{To: domain.DeviceStatusStolen})
	assert.ErrorIs(t, err, errors.ErrOwnerMessageRequired)
	assert.Equal(t, domain.DeviceStatusClean, got.Status)

	got, err = Transition(d, TransitionRequest{To: domain.DeviceStatusStolen, OwnerMessage: strPtr("   ")})
	assert.ErrorIs(t, err, errors.ErrOwnerMessageRequired)
	assert.Equal(t, domain.DeviceStatusClean, got.Status)
	assert.Nil(t, got.OwnerMessage)
}

func TestTransition_MessageLengthBoundary(t *testing.T) {
	d := cleanDevice()

	exact := strings.Repeat("a", MaxOwnerMessageLength)
	got, err := Transition(d, TransitionRequest{To: domain.DeviceStatusStolen, OwnerMessage: &exact})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusStolen, got.Status)
	assert.Equal(t, exact, *got.OwnerMessage)

	tooLong := strings.Repeat("a", MaxOwnerMessageLength+1)
	got, err = Transition(d, TransitionRequest{To: domain.DeviceStatusStolen, OwnerMessage: &tooLong})
	assert.ErrorIs(t, err, errors.ErrOwnerMessageTooLong)
	assert.Equal(t, domain.DeviceStatusClean, got.Status)
}

func TestTransition_MessageLengthCountsCharacters(t *testing.T) {
	d := cleanDevice()
	msg := strings.Repeat("é", MaxOwnerMessageLength)

	_, err := Transition(d, TransitionRequest{To: domain.DeviceStatusLost, OwnerMessage: &msg})
	assert.NoError(t, err)
}

func TestTransition_UnknownToLostWithPhone(t *testing.T) {
	d := cleanDevice()
	d.Status = domain.DeviceStatusUnknown

	got, err := Transition(d, TransitionRequest{
		To:                domain.DeviceStatusLost,
		OwnerMessage:      strPtr(" Lost at the market "),
		OwnerContactPhone: strPtr("08031234567"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusLost, got.Status)
	assert.Equal(t, "Lost at the market", *got.OwnerMessage)
	assert.Equal(t, "08031234567", *got.OwnerContactPhone)
}

func TestTransition_MessageUpdateKeepsPhone(t *testing.T) {
	d := cleanDevice()
	d.Status = domain.DeviceStatusStolen
	d.OwnerMessage = strPtr("old")
	d.OwnerContactPhone = strPtr("08031234567")

	got, err := Transition(d, TransitionRequest{To: domain.DeviceStatusStolen, OwnerMessage: strPtr("new reward offered")})
	require.NoError(t, err)
	assert.Equal(t, "new reward offered", *got.OwnerMessage)
	assert.Equal(t, "08031234567", *got.OwnerContactPhone)

	_, err = Transition(d, TransitionRequest{To: domain.DeviceStatusLost})
	assert.ErrorIs(t, err, errors.ErrOwnerMessageRequired)
}

func TestTransition_RecoveredClearsContactDetails(t *testing.T) {
	d := cleanDevice()
	d.Status = domain.DeviceStatusLost
	d.OwnerMessage = strPtr("call me")
	d.OwnerContactPhone = strPtr("08031234567")

	got, err := Transition(d, TransitionRequest{To: domain.DeviceStatusClean})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusClean, got.Status)
	assert.Nil(t, got.OwnerMessage)
	assert.Nil(t, got.OwnerContactPhone)
}

func TestTransition_BlockedIsUnreachable(t *testing.T) {
	for _, from := range domain.DeviceStatuses {
		d := cleanDevice()
		d.Status = from
		_, err := Transition(d, TransitionRequest{To: domain.DeviceStatusBlocked, OwnerMessage: strPtr("x")})
		assert.ErrorIs(t, err, errors.ErrIllegalTransition, "from %s", from)
	}

	d := cleanDevice()
	d.Status = domain.DeviceStatusBlocked
	assert.Empty(t, AllowedTargets(d.Status))
}

func TestTransition_InvalidTarget(t *testing.T) {
	_, err := Transition(cleanDevice(), TransitionRequest{To: "MISSING"})
	assert.ErrorIs(t, err, errors.ErrInvalidStatus)
}

func TestTransition_LowercaseTargetAccepted(t *testing.T) {
	got, err := Transition(cleanDevice(), TransitionRequest{To: "stolen", OwnerMessage: strPtr("reward")})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusStolen, got.Status)
}

func TestAllowedTargets(t *testing.T) {
	assert.Equal(t, []domain.DeviceStatus{domain.DeviceStatusStolen, domain.DeviceStatusLost}, AllowedTargets(domain.DeviceStatusClean))
	assert.Equal(t, []domain.DeviceStatus{domain.DeviceStatusClean, domain.DeviceStatusStolen, domain.DeviceStatusLost}, AllowedTargets(domain.DeviceStatusStolen))
}

func TestInitialState(t *testing.T) {
	status, msg, phone, err := InitialState("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusClean, status)
	assert.Nil(t, msg)
	assert.Nil(t, phone)

	_, _, _, err = InitialState(domain.DeviceStatusBlocked, nil, nil)
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)

	_, _, _, err = InitialState(domain.DeviceStatusStolen, nil, nil)
	assert.ErrorIs(t, err, errors.ErrOwnerMessageRequired)

	status, msg, phone, err = InitialState("lost", strPtr("help"), strPtr("  "))
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusLost, status)
	assert.Equal(t, "help", *msg)
	assert.Nil(t, phone)
}
