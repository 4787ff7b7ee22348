package domain

import (
	"strconv"
	"strings"
)

// ParseMinorUnits converts a decimal amount such as "5.00" to minor units
// assuming two fractional digits.
func ParseMinorUnits(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidPayload
	}
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > 2 {
		return 0, ErrInvalidPayload
	}
	frac += strings.Repeat("0", 2-len(frac))

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, ErrInvalidPayload
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidPayload
	}
	return units*100 + cents, nil
}

// ParseCredits reads a positive credit count from a string field.
func ParseCredits(value string) (int64, bool) {
	credits, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || credits <= 0 {
		return 0, false
	}
	return credits, true
}
