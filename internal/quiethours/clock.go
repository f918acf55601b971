// Package quiethours computes per-recipient quiet-hour windows in a given
// IANA timezone, including DST-correct "next window end" instants.
package quiethours

import (
	"fmt"
	"time"

	_ "time/tzdata" // ensure IANA zone data is available regardless of host
)

// Window is a configured quiet-hours window expressed as local HH:MM
// boundaries. A window where Start > End wraps midnight.
type Window struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

func parseHHMM(s string) (hour, minute int, err error) {
	_, err = fmt.Sscanf(s, "%02d:%02d", &hour, &minute)
	if err != nil {
		return 0, 0, fmt.Errorf("quiethours: invalid HH:MM %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("quiethours: out of range HH:MM %q", s)
	}
	return hour, minute, nil
}

func minutesSinceMidnight(hour, minute int) int {
	return hour*60 + minute
}

// IsInWindow reports whether now, interpreted in loc, falls inside w.
func (w Window) IsInWindow(loc *time.Location, now time.Time) (bool, error) {
	startH, startM, err := parseHHMM(w.Start)
	if err != nil {
		return false, err
	}
	endH, endM, err := parseHHMM(w.End)
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	current := minutesSinceMidnight(local.Hour(), local.Minute())
	start := minutesSinceMidnight(startH, startM)
	end := minutesSinceMidnight(endH, endM)

	if start > end {
		// wraps midnight, e.g. 21:00 -> 08:00
		return current >= start || current < end, nil
	}
	return current >= start && current < end, nil
}

// WindowEndAfter returns the soonest future UTC instant, strictly after
// now, at which a message would fall outside the quiet window — i.e. the
// next occurrence of w.End in loc. Correct across DST transitions because
// the end-of-day boundary is computed on the local calendar date and then
// converted back to an absolute instant via loc, not by adding a fixed
// duration.
func (w Window) WindowEndAfter(loc *time.Location, now time.Time) (time.Time, error) {
	endH, endM, err := parseHHMM(w.End)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), endH, endM, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.UTC(), nil
}
