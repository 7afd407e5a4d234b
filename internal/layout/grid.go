package layout

import (
	"errors"
	"sort"
	"time"

	"schedcal/internal/dateutil"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
)

// Block is one renderable event rectangle inside a day column.
type Block struct {
	Event model.Event
	Position
	Placement
}

// DayLayout holds the blocks of one day, ordered by clipped start then ID.
type DayLayout struct {
	Day    model.Day
	Blocks []Block
	Groups []Group
}

// Grid is a complete render of a view window.
type Grid struct {
	Window model.ViewWindow
	Days   []DayLayout
	// Issues lists events excluded from every day because they were malformed.
	Issues []Issue
}

// Range returns the half-open instant range covered by the grid's days.
func (g Grid) Range() (time.Time, time.Time) {
	days := make([]model.Day, len(g.Days))
	for i, dl := range g.Days {
		days[i] = dl.Day
	}
	return Bounds(days)
}

// EventCount returns the number of distinct events placed anywhere in the grid.
func (g Grid) EventCount() int {
	seen := make(map[string]struct{})
	for _, dl := range g.Days {
		for _, b := range dl.Blocks {
			seen[b.Event.ID] = struct{}{}
		}
	}
	return len(seen)
}

// WindowRange returns the fetch range for a view window without building a grid.
func WindowRange(d dateutil.Dates, w model.ViewWindow) (time.Time, time.Time) {
	return Bounds(ResolveDays(d, w.Anchor, w.Granularity))
}

// Build renders events into the days of window w.
func Build(d dateutil.Dates, w model.ViewWindow, events []model.Event) Grid {
	began := time.Now()

	valid, issues := Validate(events)
	for _, is := range issues {
		reportIssue(is)
	}

	days := ResolveDays(d, w.Anchor, w.Granularity)
	grid := Grid{
		Window: w,
		Days:   make([]DayLayout, 0, len(days)),
		Issues: issues,
	}

	for _, day := range days {
		grid.Days = append(grid.Days, layoutDay(day, valid))
	}

	metrics.LayoutDuration.Observe(time.Since(began).Seconds())
	metrics.LayoutDays.Observe(float64(len(days)))
	return grid
}

func layoutDay(day model.Day, events []model.Event) DayLayout {
	onDay := EventsForDay(events, day)

	byID := make(map[string]model.Event, len(onDay))
	positions := make(map[string]Position, len(onDay))
	spans := make([]Span, 0, len(onDay))
	for _, e := range onDay {
		p := PositionEvent(e, day)
		byID[e.ID] = e
		positions[e.ID] = p
		spans = append(spans, Span{ID: e.ID, Start: p.Start, End: p.End})
	}

	packing := Pack(spans)
	for _, id := range packing.Dropped {
		// Validate already filtered these; reaching here means the
		// positioner produced an empty clip.
		reportIssue(Issue{EventID: id, Title: byID[id].Title, Err: ErrNonPositiveDuration})
	}

	blocks := make([]Block, 0, len(packing.Placements))
	for id, pl := range packing.Placements {
		blocks = append(blocks, Block{
			Event:     byID[id],
			Position:  positions[id],
			Placement: pl,
		})
	}
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].Start.Equal(blocks[j].Start) {
			return blocks[i].Start.Before(blocks[j].Start)
		}
		return blocks[i].Event.ID < blocks[j].Event.ID
	})

	return DayLayout{Day: day, Blocks: blocks, Groups: packing.Groups}
}

func reportIssue(is Issue) {
	appLog.Error("layout: skipping malformed event", is.Err, "id", is.EventID, "title", is.Title)
	metrics.MalformedEvents.WithLabelValues(issueReason(is.Err)).Inc()
}

func issueReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingID):
		return "missing_id"
	case errors.Is(err, ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, ErrMissingTimestamp):
		return "missing_timestamp"
	case errors.Is(err, ErrNonPositiveDuration):
		return "non_positive_duration"
	default:
		return "other"
	}
}
