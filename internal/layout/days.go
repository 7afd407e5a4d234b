// Package layout turns a list of events and a view window into positioned,
// side-by-side packed blocks per calendar day.
//
// Every function in this package is pure: inputs are never mutated and no
// state survives between calls, so it is safe to render concurrently.
package layout

import (
	"time"

	"schedcal/internal/dateutil"
	"schedcal/internal/model"
)

// ResolveDays enumerates the days to display for anchor at granularity g.
//
//   - Day:   the anchor's calendar day
//   - Week:  7 days from the start of the anchor's week
//   - Month: whole weeks covering the anchor's month; the 1st is always in
//     the first row and the result length is a multiple of 7
func ResolveDays(d dateutil.Dates, anchor time.Time, g model.Granularity) []model.Day {
	var from, to time.Time

	switch g {
	case model.GranularityWeek:
		from = d.StartOf(anchor, dateutil.Week)
		to = d.Add(from, 1, dateutil.Week)
	case model.GranularityMonth:
		first := d.StartOf(anchor, dateutil.Month)
		lastDay := d.Add(d.Add(first, 1, dateutil.Month), -1, dateutil.Day)
		from = d.StartOf(first, dateutil.Week)
		to = d.Add(d.StartOf(lastDay, dateutil.Week), 1, dateutil.Week)
	default:
		from = d.StartOf(anchor, dateutil.Day)
		to = d.Add(from, 1, dateutil.Day)
	}

	days := make([]model.Day, 0, 42)
	for cur := from; d.IsBefore(cur, to); cur = d.Add(cur, 1, dateutil.Day) {
		days = append(days, newDay(d, cur))
	}
	return days
}

// DayOf returns the Day containing t.
func DayOf(d dateutil.Dates, t time.Time) model.Day {
	return newDay(d, d.StartOf(t, dateutil.Day))
}

func newDay(d dateutil.Dates, start time.Time) model.Day {
	return model.Day{
		Date:  start,
		Start: start,
		End:   d.Add(start, 1, dateutil.Day),
	}
}

// Bounds returns the half-open range [first.Start, last.End) covered by days.
// The zero range is returned for an empty slice.
func Bounds(days []model.Day) (time.Time, time.Time) {
	if len(days) == 0 {
		return time.Time{}, time.Time{}
	}
	return days[0].Start, days[len(days)-1].End
}
