// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no international prefix.
const DefaultRegion = "GB"

// ErrInvalidNumber is returned when input cannot be parsed as a valid number.
var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	normalized, err := Parse(input, DefaultRegion)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// Parse returns the E.164 form of input, interpreting national numbers in region.
func Parse(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidNumber
	}

	// Possible, not valid: reserved drama ranges must still normalize.
	if !phonenumbers.IsPossibleNumber(number) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// IsE164 reports whether input is already a valid number in E.164 form.
func IsE164(input string) bool {
	if !strings.HasPrefix(input, "+") {
		return false
	}
	normalized, err := Parse(input, DefaultRegion)
	return err == nil && normalized == input
}
