package layout

import (
	"time"

	"schedcal/internal/model"
)

// Position is an event's vertical placement inside one day column.
// Offset and Height are measured from day.Start along the day's time axis.
type Position struct {
	// Start / End are the event bounds clipped to the day.
	Start time.Time
	End   time.Time

	Offset time.Duration
	Height time.Duration
}

// OffsetMinutes is Offset expressed in minutes.
func (p Position) OffsetMinutes() float64 {
	return p.Offset.Minutes()
}

// HeightMinutes is Height expressed in minutes.
func (p Position) HeightMinutes() float64 {
	return p.Height.Minutes()
}

// PositionEvent clips e to day and measures it. Height is positive whenever
// Intersects(e, day) holds; callers run it on filtered events only.
func PositionEvent(e model.Event, day model.Day) Position {
	start := e.Start
	if start.Before(day.Start) {
		start = day.Start
	}
	end := e.End
	if end.After(day.End) {
		end = day.End
	}

	return Position{
		Start:  start,
		End:    end,
		Offset: start.Sub(day.Start),
		Height: end.Sub(start),
	}
}
