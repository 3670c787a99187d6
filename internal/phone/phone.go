// internal/phone/phone.go
package phone

import (
	"fmt"
	"strings"
)

// DefaultCountryCode is prefixed to bare 10-digit numbers.
const DefaultCountryCode = "1"

// Normalize canonicalizes a raw phone string into +<digits> form:
//   - "+" prefixed input keeps its digit run
//   - exactly 10 digits is treated as domestic and gets the default country code
//   - 11 digits starting with the domestic country digit gets a bare "+"
//   - 8 or more digits is kept as best-effort international
//
// Anything shorter fails. Normalizing an already-normalized number is a no-op.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	digits := stripNonDigits(trimmed)

	switch {
	case strings.HasPrefix(trimmed, "+") && len(digits) >= 8:
		return "+" + digits, nil
	case len(digits) == 10:
		return "+" + DefaultCountryCode + digits, nil
	case len(digits) == 11 && strings.HasPrefix(digits, DefaultCountryCode):
		return "+" + digits, nil
	case len(digits) >= 8:
		return "+" + digits, nil
	default:
		return "", fmt.Errorf("invalid phone number: %q", raw)
	}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
