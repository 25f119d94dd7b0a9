package dialout

import "strings"

// Rules is the reference policy applied when this server answers dial-out
// checks itself: E.164 length bounds on plain digit strings, with NANP
// numbers getting a country label.
type Rules struct{}

func (Rules) Check(digits string) CheckResult {
	if digits == "" || DigitsOnly(digits) != digits {
		return CheckResult{Allow: false, Phone: digits}
	}
	if len(digits) < 8 || len(digits) > 15 {
		return CheckResult{Allow: false, Phone: "+" + digits}
	}

	result := CheckResult{Allow: true, Phone: "+" + digits}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		result.Country = "US"
	}
	return result
}
