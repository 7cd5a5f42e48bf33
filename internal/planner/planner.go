// Package planner turns the exchange calendar and clock into the previous
// and current trading windows plus the civil days whose filings must be
// fetched.
package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

// Session is one exchange session with its trading window resolved to
// Eastern instants.
type Session struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// Contains reports whether t falls inside the trading window, inclusive.
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && !t.After(s.Close)
}

// Plan is the output of ComputePlan. FetchDays covers every civil day from
// the previous session date through the current session date inclusive, so
// weekend and holiday filings are picked up.
type Plan struct {
	Previous  Session
	Current   Session
	FetchDays []time.Time
}

// FetchDaysFor partitions the fetch set between the two windows: the
// previous window owns its own session date, the current window owns every
// later day through its session date.
func (p *Plan) FetchDaysFor(s Session) []time.Time {
	var days []time.Time
	for _, day := range p.FetchDays {
		if marketclock.SameDay(day, s.Date) || (day.After(p.Previous.Date) && day.Before(s.Date)) {
			days = append(days, day)
		}
	}
	return days
}

// ComputePlan resolves the current session (the one whose window contains
// now, else the next upcoming one) and the previous session, then builds
// the fetch set. The calendar must span at least the previous session
// through the day after now.
func ComputePlan(now time.Time, calendar []alpaca.CalendarDay, clock *alpaca.Clock) (*Plan, error) {
	if len(calendar) == 0 {
		return nil, fmt.Errorf("calendar is empty")
	}

	sessions := make([]Session, 0, len(calendar))
	for _, day := range calendar {
		s, err := parseSession(day)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	currentIdx := -1
	for i, s := range sessions {
		if s.Contains(now) {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 && clock != nil && !clock.NextOpen.IsZero() {
		nextOpenDate := marketclock.DateKey(clock.NextOpen.In(marketclock.Location()))
		for i, s := range sessions {
			if marketclock.DateKey(s.Date) == nextOpenDate {
				currentIdx = i
				break
			}
		}
	}
	if currentIdx < 0 {
		for i, s := range sessions {
			if s.Open.After(now) {
				currentIdx = i
				break
			}
		}
	}
	if currentIdx < 0 {
		return nil, fmt.Errorf("no session contains or follows %s", now.Format(time.RFC3339))
	}
	if currentIdx == 0 {
		return nil, fmt.Errorf("calendar does not include a session before %s", marketclock.DateKey(sessions[0].Date))
	}

	current := sessions[currentIdx]
	previous := sessions[currentIdx-1]

	var fetchDays []time.Time
	for day := previous.Date; !day.After(current.Date); day = marketclock.AddDays(day, 1) {
		fetchDays = append(fetchDays, day)
	}

	return &Plan{Previous: previous, Current: current, FetchDays: fetchDays}, nil
}

func parseSession(day alpaca.CalendarDay) (Session, error) {
	date, err := marketclock.EnsureDate(day.Date)
	if err != nil {
		return Session{}, fmt.Errorf("invalid calendar date %q: %w", day.Date, err)
	}

	openStr := day.SessionOpen
	if openStr == "" {
		openStr = day.Open
	}
	closeStr := day.SessionClose
	if closeStr == "" {
		closeStr = day.Close
	}

	open, err := sessionInstant(date, openStr)
	if err != nil {
		return Session{}, fmt.Errorf("invalid open time %q for %s: %w", openStr, day.Date, err)
	}
	closeAt, err := sessionInstant(date, closeStr)
	if err != nil {
		return Session{}, fmt.Errorf("invalid close time %q for %s: %w", closeStr, day.Date, err)
	}
	return Session{Date: date, Open: open, Close: closeAt}, nil
}

// sessionInstant resolves "HH:MM" or compact "HHMM" on the session date to
// an Eastern instant.
func sessionInstant(date time.Time, s string) (time.Time, error) {
	var hh, mm string
	switch {
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		hh, mm = parts[0], parts[1]
	case len(s) == 4:
		hh, mm = s[:2], s[2:]
	default:
		return time.Time{}, fmt.Errorf("unrecognized time format")
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("bad hour %q", hh)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("bad minute %q", mm)
	}

	return marketclock.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0), nil
}
