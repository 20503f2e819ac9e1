package notify

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

const countryCode = "358"

// NormalizePhone converts a Finnish number in local (0…) or bare country
// code (358…) form to E.164 (+358…). Spaces and dashes are tolerated.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}

	var digits string
	switch {
	case strings.HasPrefix(cleaned, "+"):
		digits = cleaned[1:]
	case strings.HasPrefix(cleaned, countryCode):
		digits = cleaned
	case strings.HasPrefix(cleaned, "0"):
		digits = countryCode + cleaned[1:]
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}

	if len(digits) < 6 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}

	return "+" + digits, nil
}
