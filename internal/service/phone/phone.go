// Package phone canonicalizes phone numbers into a single strict normal
// form. One form is stored and compared everywhere; no fuzzy multi-variant
// matching at lookup time.
package phone

import (
	"fmt"
	"strings"

	apperrors "github.com/acme/dial-queue/pkg/errors"
)

const (
	minDigits = 7
	maxDigits = 15
)

// Canonicalize normalizes raw into "+<country code><national number>".
// Accepted inputs: full international form with "+" or "00" prefix, or a
// national number (optionally with a leading trunk zero) interpreted under
// defaultCountry, a country calling code like "1" or "44". Formatting
// characters (spaces, dots, dashes, parentheses) are stripped.
func Canonicalize(raw, defaultCountry string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty phone number", apperrors.ErrValidation)
	}

	international := strings.HasPrefix(trimmed, "+")
	digits := stripFormatting(trimmed)
	if digits == "" {
		return "", fmt.Errorf("%w: phone number %q has no digits", apperrors.ErrValidation, raw)
	}

	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}

	if !international {
		country := stripFormatting(defaultCountry)
		if country == "" {
			return "", fmt.Errorf("%w: national number %q requires a default country code", apperrors.ErrValidation, raw)
		}
		// National trunk prefix is dropped in the international form.
		digits = strings.TrimPrefix(digits, "0")
		digits = country + digits
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: phone number %q has %d digits, want %d-%d", apperrors.ErrValidation, raw, len(digits), minDigits, maxDigits)
	}
	if strings.HasPrefix(digits, "0") {
		return "", fmt.Errorf("%w: country code cannot start with zero in %q", apperrors.ErrValidation, raw)
	}

	return "+" + digits, nil
}

func stripFormatting(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
