package momo

import (
	"strings"
	"unicode"
)

// NormalizeMSISDN strips everything but digits, so "+256 (77) 123-4567"
// becomes "256771234567".
func NormalizeMSISDN(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	d := NormalizeMSISDN(phone)
	if len(d) <= 3 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-3) + d[len(d)-3:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
