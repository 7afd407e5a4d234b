package layout

import (
	"sort"
	"time"
)

// Span is the clipped extent of one event inside a day column.
type Span struct {
	ID    string
	Start time.Time
	End   time.Time
}

func (s Span) overlaps(o Span) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}

// Placement is an event's horizontal slot, in percent of the column width.
// Left is the horizontal offset.
type Placement struct {
	Left  float64 `json:"left_pct"`
	Width float64 `json:"width_pct"`
}

// Group is one overlap group: events connected, possibly transitively, by
// time overlap. Members are listed in placement order.
type Group struct {
	Members []string `json:"members"`
	// Tracks is the number of first-fit lanes the group needed. It can be
	// smaller than len(Members); width is still split len(Members) ways.
	Tracks int `json:"tracks"`
}

// Packing is the result of Pack.
type Packing struct {
	Placements map[string]Placement
	Groups     []Group
	// Dropped lists spans with End <= Start. They never get a placement.
	Dropped []string
}

type track struct {
	last Span
}

// Pack assigns side-by-side slots to the spans of a single day.
//
// Spans are ordered by start (ties by ID) and placed first-fit into tracks:
// a span joins the first track whose most recent span it does not overlap,
// else it opens a new track. Spans are then grouped into connected overlap
// components; a group of n members gives each member width 100/n and
// left offset index*100/n, index being the member's placement order.
//
// Transitive chains (A-B and B-C overlap, A-C do not) still split n ways;
// this is not a minimal interval colouring and must not become one.
func Pack(spans []Span) Packing {
	out := Packing{Placements: make(map[string]Placement, len(spans))}

	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if !s.End.After(s.Start) {
			out.Dropped = append(out.Dropped, s.ID)
			continue
		}
		valid = append(valid, s)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].Start.Equal(valid[j].Start) {
			return valid[i].Start.Before(valid[j].Start)
		}
		return valid[i].ID < valid[j].ID
	})

	var (
		tracks   []track
		members  []string
		groupEnd time.Time
	)

	flush := func() {
		if len(members) == 0 {
			return
		}
		n := float64(len(members))
		width := 100 / n
		for i, id := range members {
			out.Placements[id] = Placement{
				Left:  float64(i) * width,
				Width: width,
			}
		}
		out.Groups = append(out.Groups, Group{Members: members, Tracks: len(tracks)})
		members = nil
		tracks = nil
	}

	for _, s := range valid {
		// A span starting at or after everything placed so far cannot be
		// connected to the current group.
		if len(members) > 0 && !s.Start.Before(groupEnd) {
			flush()
		}

		placed := false
		for i := range tracks {
			if !s.overlaps(tracks[i].last) {
				tracks[i].last = s
				placed = true
				break
			}
		}
		if !placed {
			tracks = append(tracks, track{last: s})
		}

		members = append(members, s.ID)
		if len(members) == 1 || s.End.After(groupEnd) {
			groupEnd = s.End
		}
	}
	flush()

	return out
}
