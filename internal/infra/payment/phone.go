package payment

import (
	"strings"
)

const maliCountryCode = "223"

// normalizeMaliPhone strips separators and the country prefix (223, +223,
// 00223) and returns the 8 local digits. prefixes lists the allowed first
// digits; empty means any.
func normalizeMaliPhone(raw, prefixes string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return "", false
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) == 11 && strings.HasPrefix(digits, maliCountryCode) {
		digits = digits[len(maliCountryCode):]
	}
	if len(digits) != 8 {
		return "", false
	}
	if prefixes != "" && !strings.ContainsRune(prefixes, rune(digits[0])) {
		return "", false
	}
	return digits, true
}
