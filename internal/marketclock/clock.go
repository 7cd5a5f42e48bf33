// Package marketclock converts between absolute instants and U.S. Eastern
// civil dates. Every date-key derivation in the system goes through this
// package so that trading dates are consistent across DST transitions.
package marketclock

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DateKeyLayout is the canonical YYYY-MM-DD key for trading dates.
	DateKeyLayout = "2006-01-02"
	// CompactDateKeyLayout is the YYYYMMDD key used by the filings feed.
	CompactDateKeyLayout = "20060102"
)

var (
	locOnce sync.Once
	eastern *time.Location
)

// Location returns the America/New_York location. The zone database is a
// hard requirement; failure to load it is unrecoverable at startup.
func Location() *time.Location {
	locOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			panic(fmt.Sprintf("marketclock: failed to load America/New_York: %v", err))
		}
		eastern = loc
	})
	return eastern
}

// Parts holds the Eastern civil reading of an instant.
type Parts struct {
	Year        int
	Month       time.Month
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// EasternParts decomposes an instant into Eastern civil parts.
func EasternParts(t time.Time) Parts {
	et := t.In(Location())
	return Parts{
		Year:        et.Year(),
		Month:       et.Month(),
		Day:         et.Day(),
		Hour:        et.Hour(),
		Minute:      et.Minute(),
		Second:      et.Second(),
		Millisecond: et.Nanosecond() / int(time.Millisecond),
	}
}

// Date builds an instant from Eastern civil parts. Ambiguous or skipped
// wall-clock readings around DST transitions resolve to whatever the Go zone
// database reports for that reading; they are not re-interpreted.
func Date(year int, month time.Month, day, hour, minute, second, millisecond int) time.Time {
	return time.Date(year, month, day, hour, minute, second, millisecond*int(time.Millisecond), Location())
}

// StartOfDay returns the first instant of the Eastern civil day containing t.
func StartOfDay(t time.Time) time.Time {
	et := t.In(Location())
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, Location())
}

// EndOfDay returns the last representable millisecond of the Eastern civil
// day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(AddDays(t, 1)).Add(-time.Millisecond)
}

// AddDays shifts t by n Eastern civil days, preserving the Eastern wall time.
// Crossing a DST boundary keeps the wall clock reading, not the elapsed
// duration.
func AddDays(t time.Time, n int) time.Time {
	et := t.In(Location())
	return time.Date(et.Year(), et.Month(), et.Day()+n, et.Hour(), et.Minute(), et.Second(), et.Nanosecond(), Location())
}

// DateKey formats the Eastern civil date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.In(Location()).Format(DateKeyLayout)
}

// CompactDateKey formats the Eastern civil date of t as YYYYMMDD.
func CompactDateKey(t time.Time) string {
	return t.In(Location()).Format(CompactDateKeyLayout)
}

// SameDay reports whether two instants fall on the same Eastern civil day.
func SameDay(a, b time.Time) bool {
	return DateKey(a) == DateKey(b)
}

// ParseDate accepts either a YYYY-MM-DD date (interpreted as midnight
// Eastern) or an ISO-8601 timestamp with offset. The second return value is
// false when the input parses as neither.
func ParseDate(s string) (time.Time, bool) {
	if t, err := time.ParseInLocation(DateKeyLayout, s, Location()); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// EnsureDate is ParseDate for callers that must stop on bad input.
func EnsureDate(s string) (time.Time, error) {
	t, ok := ParseDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
