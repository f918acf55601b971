package compliance

import "strings"

// ScanResult is advisory only: the pipeline logs Issues but never blocks
// a send on them.
type ScanResult struct {
	Approved bool
	Issues   []string
}

// healthClaimWords and minorAppealingWords are the two default word lists
// scanned case-insensitively as substrings. They are small, fixed
// package-level lists; Config has no option to extend or replace them.
var healthClaimWords = []string{
	"cure", "cures", "treats cancer", "heals", "medicinal miracle",
}

var minorAppealingWords = []string{
	"cartoon", "candy-flavored", "gummy bear", "kid-friendly",
}

// ScanContent performs case-insensitive substring detection against the
// health-claim and minor-appealing word lists. The state parameter exists
// so a future per-state word list can be layered in without changing the
// call signature; it is currently unused.
func ScanContent(text string, state *string) ScanResult {
	lower := strings.ToLower(text)
	var issues []string

	for _, w := range healthClaimWords {
		if strings.Contains(lower, w) {
			issues = append(issues, "health-claim: "+w)
		}
	}
	for _, w := range minorAppealingWords {
		if strings.Contains(lower, w) {
			issues = append(issues, "minor-appealing: "+w)
		}
	}

	return ScanResult{Approved: true, Issues: issues}
}
