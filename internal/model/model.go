package model

import (
	"fmt"
	"strings"
	"time"
)

// Event is a single calendar entry as delivered by an event source.
// Only ID, Start and End are interpreted by the layout engine; the rest is
// carried through to presentation untouched.
type Event struct {
	ID    string
	Title string

	// Start / End are absolute instants. A valid event has End after Start.
	Start time.Time
	End   time.Time

	Location    string
	Attendees   []string
	Organizer   string
	MeetingLink string
	Notes       string

	// SourceID identifies the subscription or store the event came from.
	SourceID string
}

// Duration returns End - Start. Non-positive for malformed events.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Day is one calendar column: [Start, End) in the display location.
// Date equals Start and is kept separately for readability at call sites.
type Day struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// Length returns the wall-clock length of the day (23h/25h across DST changes).
func (d Day) Length() time.Duration {
	return d.End.Sub(d.Start)
}

// Key returns the day's calendar date as YYYY-MM-DD.
func (d Day) Key() string {
	return d.Date.Format("2006-01-02")
}

// Granularity is the calendar view mode.
type Granularity int

const (
	GranularityDay Granularity = iota
	GranularityWeek
	GranularityMonth
)

func (g Granularity) String() string {
	switch g {
	case GranularityDay:
		return "day"
	case GranularityWeek:
		return "week"
	case GranularityMonth:
		return "month"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity accepts "day", "week" or "month" (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return GranularityDay, nil
	case "week":
		return GranularityWeek, nil
	case "month":
		return GranularityMonth, nil
	default:
		return 0, fmt.Errorf("model: unknown granularity %q", s)
	}
}

// ViewWindow is the controller's navigation state.
type ViewWindow struct {
	Anchor      time.Time
	Granularity Granularity
}
