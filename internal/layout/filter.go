package layout

import (
	"schedcal/internal/model"
)

// Intersects reports whether e overlaps day's [Start, End) window. An event
// ending exactly at midnight belongs to the previous day only.
func Intersects(e model.Event, day model.Day) bool {
	return e.Start.Before(day.End) && e.End.After(day.Start)
}

// EventsForDay returns the events that intersect day, preserving input order.
func EventsForDay(events []model.Event, day model.Day) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if Intersects(e, day) {
			out = append(out, e)
		}
	}
	return out
}
