package quiethours_test

import (
	"testing"
	"time"

	"github.com/leafline/messaging-core/internal/quiethours"
)

var defaultWindow = quiethours.Window{Start: "21:00", End: "08:00"}

func mustLoc(t *testing.T, name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestIsInWindow_Wrapping(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")

	// 22:00 PT is inside a 21:00-08:00 window.
	now := time.Date(2026, 1, 15, 22, 0, 0, 0, loc)
	in, err := defaultWindow.IsInWindow(loc, now)
	if err != nil {
		t.Fatal(err)
	}
	if !in {
		t.Errorf("expected 22:00 to be inside quiet window")
	}

	// 12:00 PT is outside.
	now = time.Date(2026, 1, 15, 12, 0, 0, 0, loc)
	in, err = defaultWindow.IsInWindow(loc, now)
	if err != nil {
		t.Fatal(err)
	}
	if in {
		t.Errorf("expected 12:00 to be outside quiet window")
	}
}

func TestIsInWindow_NonWrapping(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")
	w := quiethours.Window{Start: "09:00", End: "17:00"}

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, loc)
	in, err := w.IsInWindow(loc, now)
	if err != nil {
		t.Fatal(err)
	}
	if !in {
		t.Errorf("expected 12:00 to be inside 09:00-17:00 window")
	}
}

func TestWindowEndAfter_SoonestFutureBoundary(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")

	now := time.Date(2026, 1, 15, 22, 0, 0, 0, loc)
	end, err := defaultWindow.WindowEndAfter(loc, now)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 1, 16, 8, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Errorf("expected window end %v, got %v", want, end)
	}
}

func TestWindowEndAfter_AlreadyPastToday(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")

	// 03:00 PT: today's 08:00 boundary is still ahead.
	now := time.Date(2026, 1, 15, 3, 0, 0, 0, loc)
	end, err := defaultWindow.WindowEndAfter(loc, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 1, 15, 8, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Errorf("expected window end %v, got %v", want, end)
	}
}

func TestWindowEndAfter_AcrossDSTSpringForward(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")

	// 2026-03-08 02:00 America/Los_Angeles springs forward to 03:00.
	// A quiet window ending at 08:00 the next morning must still land on
	// the correct wall-clock instant, not be off by the DST offset.
	now := time.Date(2026, 3, 7, 22, 0, 0, 0, loc)
	end, err := defaultWindow.WindowEndAfter(loc, now)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 3, 8, 8, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Errorf("expected window end %v, got %v", want, end)
	}
	if end.In(loc).Hour() != 8 {
		t.Errorf("expected local hour 8 after DST transition, got %d", end.In(loc).Hour())
	}
}
