package imei

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_KnownIdentifiers(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		valid      bool
		normalized string
	}{
		{"valid checksum", "490154203237518", true, "490154203237518"},
		{"bad check digit", "490154203237519", false, "490154203237519"},
		{"another valid", "356938035643809", true, "356938035643809"},
		{"dashes stripped", "35-209900-176148-1", true, "352099001761481"},
		{"spaces stripped", " 4901 5420 3237 518 ", true, "490154203237518"},
		{"leading zero kept", "012345678901237", true, "012345678901237"},
		{"too short", "49015420323751", false, "49015420323751"},
		{"too long", "4901542032375180", false, "4901542032375180"},
		{"empty", "", false, ""},
		{"letters only", "abcdefghijklmno", false, ""},
		{"unicode digits ignored", "４９０154203237518", false, "154203237518"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.raw)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.normalized, res.Normalized)
		})
	}
}

func TestValidate_EveryCheckDigitExceptOneFails(t *testing.T) {
	prefix := "49015420323751"
	validCount := 0
	for d := '0'; d <= '9'; d++ {
		if IsValid(prefix + string(d)) {
			validCount++
			assert.Equal(t, '8', d)
		}
	}
	assert.Equal(t, 1, validCount)
}

func TestValidate_WrongLengthNeverValid(t *testing.T) {
	for n := 0; n <= 30; n++ {
		if n == Length {
			continue
		}
		raw := strings.Repeat("0", n)
		assert.False(t, Validate(raw).Valid, "length %d", n)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	inputs := []string{"490154203237518", "490154203237519", "x", ""}
	for _, in := range inputs {
		assert.Equal(t, Validate(in), Validate(in))
	}
}
