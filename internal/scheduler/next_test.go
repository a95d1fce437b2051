package scheduler

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s unavailable: %v", name, err)
	}
	return loc
}

func TestNextDaily(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today", time.Date(2026, 10, 14, 5, 0, 0, 0, la), time.Date(2026, 10, 14, 6, 0, 0, 0, la)},
		{"exactly at", time.Date(2026, 10, 14, 6, 0, 0, 0, la), time.Date(2026, 10, 15, 6, 0, 0, 0, la)},
		{"after today", time.Date(2026, 10, 14, 23, 59, 0, 0, la), time.Date(2026, 10, 15, 6, 0, 0, 0, la)},
		{"month end", time.Date(2026, 10, 31, 7, 0, 0, 0, la), time.Date(2026, 11, 1, 6, 0, 0, 0, la)},
	}
	for _, tc := range cases {
		if got := NextDaily(tc.now, 6, 0, la); !got.Equal(tc.want) {
			t.Fatalf("%s: NextDaily = %v; want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextDaily_FallBackIs25Hours(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	// 2026-11-01 is the end of DST in the US.
	fired := time.Date(2026, 10, 31, 6, 0, 0, 0, la)
	next := NextDaily(fired, 6, 0, la)

	if got := next.Sub(fired); got != 25*time.Hour {
		t.Fatalf("interval = %v; want 25h", got)
	}
	if next.In(la).Hour() != 6 {
		t.Fatalf("wall clock drifted: %v", next.In(la))
	}
}

func TestNextDaily_SpringForwardIs23Hours(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	fired := time.Date(2026, 3, 7, 6, 0, 0, 0, la)
	next := NextDaily(fired, 6, 0, la)
	if got := next.Sub(fired); got != 23*time.Hour {
		t.Fatalf("interval = %v; want 23h", got)
	}
}

func TestNextDaily_GapTimeStillFiresThatDay(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	// 02:30 does not exist on 2026-03-08.
	now := time.Date(2026, 3, 8, 1, 0, 0, 0, la)
	next := NextDaily(now, 2, 30, la)
	if !next.After(now) {
		t.Fatalf("next %v not after now %v", next, now)
	}
	if y, m, d := next.In(la).Date(); y != 2026 || m != 3 || d != 8 {
		t.Fatalf("gap time moved to another day: %v", next.In(la))
	}
}

func TestNextDaily_UTCInputConverted(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	// 12:00 UTC is 05:00 PDT.
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 10, 14, 6, 0, 0, 0, la)
	if got := NextDaily(now, 6, 0, la); !got.Equal(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
}

func TestNextBoundary(t *testing.T) {
	loc := time.UTC
	cases := []struct{ now, want time.Time }{
		{time.Date(2026, 1, 1, 10, 2, 30, 0, loc), time.Date(2026, 1, 1, 10, 5, 0, 0, loc)},
		{time.Date(2026, 1, 1, 10, 5, 0, 0, loc), time.Date(2026, 1, 1, 10, 10, 0, 0, loc)},
		{time.Date(2026, 1, 1, 23, 58, 0, 0, loc), time.Date(2026, 1, 2, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		if got := NextBoundary(tc.now, 5*time.Minute, loc); !got.Equal(tc.want) {
			t.Fatalf("NextBoundary(%v) = %v; want %v", tc.now, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("06:30")
	if err != nil || h != 6 || m != 30 {
		t.Fatalf("got %d:%d err=%v", h, m, err)
	}
	for _, bad := range []string{"", "6", "25:00", "06:61", "6am"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) accepted", bad)
		}
	}
}

func TestPeriodKey(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	// 03:00 UTC on the 15th is still the 14th in Los Angeles.
	if got := PeriodKey(time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC), la); got != "2026-10-14" {
		t.Fatalf("PeriodKey = %q", got)
	}
}
