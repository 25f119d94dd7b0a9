package dialout

import (
	"regexp"
	"strings"
)

// phoneShapeRe accepts the loose "could be a phone number" shape: digits
// plus the +, parenthesis and dash characters people type into dial pads.
// Anything else, including spaces, disqualifies the text. Proper validation
// happens in the dial-out check; this only gates whether a check is issued.
var phoneShapeRe = regexp.MustCompile(`^[0-9+()-]+$`)

// LooksLikePhoneNumber reports whether text plausibly denotes a phone
// number. At least one digit is required, so "+" or "()" alone do not pass.
func LooksLikePhoneNumber(text string) bool {
	return phoneShapeRe.MatchString(text) && strings.ContainsAny(text, "0123456789")
}

// DigitsOnly strips every non-digit character from text.
func DigitsOnly(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// NormalizeNumber converts entered text into the digit string submitted for
// dial-out validation. Entries without an explicit "+" prefix are assumed
// domestic and get the "1" country code prepended, unless the digits
// already start with it.
func NormalizeNumber(text string) string {
	digits := DigitsOnly(text)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(text, "+") && !strings.HasPrefix(digits, "1") {
		digits = "1" + digits
	}
	return digits
}
