package consolidate

import (
	"strings"
	"unicode"
)

// normalizePhone strips non-digits and keeps the last 10 digits, so
// "+1 (555) 123-4567" and "5551234567" compare equal. Returns "" when the
// value has no digits at all.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// normalizeName lowercases, strips punctuation and collapses whitespace:
// "John Q. Public " and "john q public" compare equal.
func normalizeName(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
