// Package phone normalizes user-supplied phone strings to a best-effort
// E.164 form. It is deliberately non-total: junk input yields a
// nonsensical but deterministic string rather than an error, since the
// caller is responsible for validating the result before it is stored.
package phone

import "strings"

// Normalize strips every non-digit character from s. If exactly 10 digits
// remain, it prepends the US/Canada country code "1". The result is
// returned with a leading "+".
func Normalize(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		d = "1" + d
	}
	return "+" + d
}
