// Package dateutil provides the calendar arithmetic used by the layout
// engine. All operations are relative to an explicit location and week
// start; nothing here reads or mutates process-wide state.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// Unit is a calendar unit for StartOf / Add / IsSame.
type Unit int

const (
	Day Unit = iota
	Week
	Month
)

// Dates is the small date toolkit the layout engine depends on.
type Dates interface {
	IsBefore(a, b time.Time) bool
	IsSame(a, b time.Time, u Unit) bool
	StartOf(t time.Time, u Unit) time.Time
	Add(t time.Time, n int, u Unit) time.Time
	Max(a, b time.Time) time.Time
	Min(a, b time.Time) time.Time
	Location() *time.Location
}

// Calendar implements Dates for a fixed location and week start.
type Calendar struct {
	loc       *time.Location
	weekStart time.Weekday
}

// New returns a Calendar. A nil location means time.Local.
func New(loc *time.Location, weekStart time.Weekday) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc, weekStart: weekStart}
}

// Default is a Sunday-start calendar in UTC.
func Default() Calendar {
	return New(time.UTC, time.Sunday)
}

func (c Calendar) Location() *time.Location {
	return c.loc
}

func (c Calendar) WeekStart() time.Weekday {
	return c.weekStart
}

func (c Calendar) IsBefore(a, b time.Time) bool {
	return a.Before(b)
}

func (c Calendar) IsSame(a, b time.Time, u Unit) bool {
	return c.StartOf(a, u).Equal(c.StartOf(b, u))
}

// StartOf truncates t to the beginning of its day, week or month in the
// calendar's location. When local midnight is skipped by a DST change the
// day begins at the first instant that carries its date.
func (c Calendar) StartOf(t time.Time, u Unit) time.Time {
	t = t.In(c.loc)
	y, m, d := t.Date()
	switch u {
	case Week:
		d -= (int(t.Weekday()) - int(c.weekStart) + 7) % 7
	case Month:
		d = 1
	}
	return c.Midnight(y, m, d)
}

// Midnight returns the first instant of the calendar date (y, m, d) in the
// calendar's location. Out-of-range values normalise as in time.Date.
func (c Calendar) Midnight(y int, m time.Month, d int) time.Time {
	wy, wm, wd := time.Date(y, m, d, 12, 0, 0, 0, c.loc).Date()
	t := time.Date(wy, wm, wd, 0, 0, 0, 0, c.loc)
	for i := 0; i < 24*60; i++ {
		if ty, tm, td := t.Date(); ty == wy && tm == wm && td == wd {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}

// Add shifts t by n units using calendar arithmetic. Month addition keeps
// the day of month clamped to the target month's last day, so Jan 31 + 1
// month is Feb 28/29 instead of rolling into March. A day start maps to the
// start of the target day.
func (c Calendar) Add(t time.Time, n int, u Unit) time.Time {
	t = t.In(c.loc)
	switch u {
	case Week:
		n *= 7
	case Month:
		first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), c.loc)
		last := daysIn(first.Year(), first.Month())
		d := t.Day()
		if d > last {
			d = last
		}
		return first.AddDate(0, 0, d-1)
	}
	y, m, d := t.Date()
	if t.Equal(c.Midnight(y, m, d)) {
		return c.Midnight(y, m, d+n)
	}
	return t.AddDate(0, 0, n)
}

func (c Calendar) Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func (c Calendar) Min(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseWeekStart maps "sunday" / "monday" to a weekday.
func ParseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	default:
		return time.Sunday, fmt.Errorf("dateutil: unsupported week start %q", s)
	}
}
