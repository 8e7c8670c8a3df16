package domain

import "strings"

// NormalizeEmail lowers and trims an email for comparison. Absent input
// yields an empty string; most signals are optional so absence is never an
// error here.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone strips a phone number to digits and drops a leading US
// country digit "1" when the remainder is a full national number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeToken trims opaque comparison tokens (fingerprints, session ids,
// cookie ids, user ids). The values are already canonical beyond whitespace.
func NormalizeToken(raw string) string {
	return strings.TrimSpace(raw)
}

// NormalizeIP trims an IP signal and keeps only the first entry of a
// comma-separated forwarded-for list.
func NormalizeIP(raw string) string {
	first := raw
	if idx := strings.Index(raw, ","); idx >= 0 {
		first = raw[:idx]
	}
	return strings.TrimSpace(first)
}
