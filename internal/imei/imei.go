// Package imei validates 15-digit device identifiers.
package imei

// Length is the number of digits in an IMEI.
const Length = 15

// Result is the outcome of validating a raw identifier.
type Result struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized"`
}

// Validate strips every non-digit character from raw and checks the Luhn
// checksum of what remains. Normalized is always the digit-only form, even
// when the identifier is invalid.
func Validate(raw string) Result {
	digits := Normalize(raw)
	if len(digits) != Length {
		return Result{Valid: false, Normalized: digits}
	}
	return Result{Valid: checksum(digits)%10 == 0, Normalized: digits}
}

// Normalize keeps only ASCII digits, preserving leading zeros.
func Normalize(raw string) string {
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			buf = append(buf, c)
		}
	}
	return string(buf)
}

// IsValid is shorthand for Validate(raw).Valid.
func IsValid(raw string) bool {
	return Validate(raw).Valid
}

// checksum walks the digits right to left; odd positions are doubled.
func checksum(digits string) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum
}
