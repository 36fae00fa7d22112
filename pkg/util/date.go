package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignWindow widens the time range outward to analysis-window boundaries:
// from rounds down, to rounds up, so a query never clips a partial window.
func AlignWindow(from, to time.Time, window time.Duration) (time.Time, time.Time) {
	if window <= 0 {
		window = time.Minute
	}
	from = from.Truncate(window)
	if r := to.Truncate(window); r.Before(to) {
		to = r.Add(window)
	}
	return from, to
}
