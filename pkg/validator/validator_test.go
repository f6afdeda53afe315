package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deviceForm struct {
	IMEI   string  `json:"imei" validate:"required,imei"`
	IMEI2  *string `json:"imei2" validate:"omitempty,imei"`
	Status string  `json:"status" validate:"omitempty,device_status"`
	Phone  string  `json:"phone" validate:"omitempty,phone"`
}

func TestValidate_CustomTags(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(&deviceForm{IMEI: "490154203237518", Status: "clean", Phone: "+2348031234567"}))
	require.NoError(t, v.Validate(&deviceForm{IMEI: "490154203237518", Phone: "08031234567"}))

	bad := "490154203237519"
	assert.Error(t, v.Validate(&deviceForm{IMEI: "490154203237518", IMEI2: &bad}))
	assert.Error(t, v.Validate(&deviceForm{IMEI: "490154203237519"}))
	assert.Error(t, v.Validate(&deviceForm{IMEI: "490154203237518", Status: "MISSING"}))
	assert.Error(t, v.Validate(&deviceForm{IMEI: "490154203237518", Phone: "12"}))
}

func TestValidateStructured_Messages(t *testing.T) {
	v := New()

	errs := v.ValidateStructured(&deviceForm{IMEI: "123", Status: "GONE"})
	require.NotNil(t, errs)
	assert.Equal(t, "IMEI must be 15 digits with a valid checksum", errs["IMEI"])
	assert.Equal(t, "Unknown device status", errs["Status"])

	assert.Nil(t, v.ValidateStructured(&deviceForm{IMEI: "490154203237518"}))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", Sanitize("  <b>hi</b> "))
}
