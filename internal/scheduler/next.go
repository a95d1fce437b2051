package scheduler

import (
	"fmt"
	"time"
)

// NextDaily returns the next occurrence of hour:minute in loc strictly after
// now. The candidate is rebuilt with time.Date for each calendar day, so DST
// transitions shift the interval to 23 or 25 hours instead of drifting the
// wall-clock time. A time that falls in a spring-forward gap is normalized
// by time.Date.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if next.After(now) {
		return next
	}
	return time.Date(y, m, d+1, hour, minute, 0, 0, loc)
}

// NextBoundary returns the first multiple of period after now, measured in
// loc's wall clock from local midnight.
func NextBoundary(now time.Time, period time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	elapsed := local.Sub(midnight)
	return midnight.Add((elapsed/period + 1) * period)
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse time of day %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// PeriodKey identifies the local calendar day of t; one daily greeting may
// be claimed per key.
func PeriodKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
