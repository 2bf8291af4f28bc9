package phone

import (
	"errors"
	"strings"
)

// ErrInvalid indicates the supplied phone number cannot be used as a session key.
var ErrInvalid = errors.New("invalid phone number")

// MinDigits is the minimum number of digits a phone number must contain
// after stripping formatting characters.
const MinDigits = 10

// defaultCountryCode is prefixed to bare 10-digit numbers.
const defaultCountryCode = "1"

// Normalize canonicalizes a user-supplied phone number into a stable
// identity key. All non-digit characters are stripped; a bare 10-digit
// number gets the default country code prefixed.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < MinDigits {
		return "", ErrInvalid
	}

	if len(digits) == MinDigits {
		digits = defaultCountryCode + digits
	}

	return digits, nil
}
