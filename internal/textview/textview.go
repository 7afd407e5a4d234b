// Package textview prints a rendered grid for terminals.
package textview

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"

	"schedcal/internal/layout"
)

// Options controls terminal output.
type Options struct {
	// Columns is the terminal width; titles are cut to fit. Default 80.
	Columns int
	// Selected marks one event ID with '*'.
	Selected string
	// Empty days are skipped unless ShowEmpty is set.
	ShowEmpty bool
}

// Render writes g as one section per day:
//
//	Tue 02 Jan 2024
//	  09:00-10:00  1/2  Standup @ Room 1
//	  09:30-11:00  2/2  Pairing
func Render(w io.Writer, g layout.Grid, opts Options) error {
	if opts.Columns <= 0 {
		opts.Columns = 80
	}

	var b strings.Builder
	start, end := g.Range()
	fmt.Fprintf(&b, "%s view, %s to %s\n",
		g.Window.Granularity, start.Format("2006-01-02"), end.Add(-1).Format("2006-01-02"))

	printed := 0
	for _, dl := range g.Days {
		if len(dl.Blocks) == 0 && !opts.ShowEmpty {
			continue
		}
		printed++
		b.WriteString("\n")
		b.WriteString(dl.Day.Date.Format("Mon 02 Jan 2006"))
		b.WriteString("\n")

		loc := dl.Day.Start.Location()
		slots := slotNumbers(dl)
		for _, blk := range dl.Blocks {
			mark := " "
			if blk.Event.ID == opts.Selected {
				mark = "*"
			}
			slot := slots[blk.Event.ID]
			prefix := fmt.Sprintf(" %s%s-%s  %d/%d  ",
				mark, blk.Start.In(loc).Format("15:04"), blk.End.In(loc).Format("15:04"), slot.index, slot.size)

			label := blk.Event.Title
			if blk.Event.Location != "" {
				label += " @ " + blk.Event.Location
			}
			b.WriteString(prefix)
			b.WriteString(Truncate(label, opts.Columns-DisplayWidth(prefix)))
			b.WriteString("\n")
		}
	}
	if printed == 0 {
		b.WriteString("\n(no events)\n")
	}

	if len(g.Issues) > 0 {
		fmt.Fprintf(&b, "\n%d event(s) skipped:\n", len(g.Issues))
		for _, is := range g.Issues {
			b.WriteString("  ")
			b.WriteString(Truncate(is.Error(), opts.Columns-2))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type slot struct {
	index, size int
}

// slotNumbers maps each block to its 1-based column within its overlap group.
func slotNumbers(dl layout.DayLayout) map[string]slot {
	out := make(map[string]slot, len(dl.Blocks))
	for _, g := range dl.Groups {
		for i, id := range g.Members {
			out[id] = slot{index: i + 1, size: len(g.Members)}
		}
	}
	return out
}

// DisplayWidth is the number of terminal cells s occupies. East Asian wide
// and fullwidth runes take two cells.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}
	return n
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// Truncate cuts s to at most max cells, ending in "…" when shortened.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if DisplayWidth(s) <= max {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := runeWidth(r)
		if used+w > max-1 {
			break
		}
		b.WriteRune(r)
		used += w
	}
	b.WriteString("…")
	return b.String()
}
