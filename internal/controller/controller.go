// Package controller owns calendar navigation state and drives event fetches
// and layout recomputation on every view change.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schedcal/internal/dateutil"
	"schedcal/internal/layout"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
)

// ErrSuperseded is returned by a transition whose fetch finished after a
// newer transition started. Its result was discarded.
var ErrSuperseded = errors.New("controller: superseded by a newer transition")

// EventSource is the external collaborator that loads events for the
// half-open range [start, end).
type EventSource interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// SourceFunc adapts a function to EventSource.
type SourceFunc func(ctx context.Context, start, end time.Time) ([]model.Event, error)

func (f SourceFunc) FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	return f(ctx, start, end)
}

// Options configures a Controller.
type Options struct {
	// Source is required.
	Source EventSource

	// Dates defaults to a Sunday-start UTC calendar.
	Dates dateutil.Dates

	// Now defaults to time.Now.
	Now func() time.Time

	// Anchor defaults to Now(); Granularity defaults to Week.
	Anchor      time.Time
	Granularity *model.Granularity

	// OnSelect is invoked with the event ID whenever SelectEvent succeeds.
	OnSelect func(eventID string)
}

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	Window          model.ViewWindow
	SelectedEventID string

	// Grid is the most recent successful render. After a failed fetch it
	// still belongs to an earlier window; compare Grid.Window with Window.
	Grid *layout.Grid

	// Err is the fetch error for Window, nil when the last fetch succeeded.
	Err error

	// Loading is true while a fetch for Window is in flight.
	Loading bool
}

// Stale reports whether the displayed grid belongs to another window.
func (s Snapshot) Stale() bool {
	if s.Grid == nil {
		return true
	}
	return s.Grid.Window.Granularity != s.Window.Granularity ||
		!s.Grid.Window.Anchor.Equal(s.Window.Anchor)
}

// Controller is safe for concurrent use.
type Controller struct {
	src      EventSource
	dates    dateutil.Dates
	now      func() time.Time
	onSelect func(string)

	mu       sync.Mutex
	window   model.ViewWindow
	selected string
	grid     *layout.Grid
	err      error
	loading  bool
	gen      uint64
	cancel   context.CancelFunc
}

// New creates a Controller. It does not fetch; call Refresh for the first render.
func New(opts Options) (*Controller, error) {
	if opts.Source == nil {
		return nil, errors.New("controller: event source is required")
	}
	if opts.Dates == nil {
		opts.Dates = dateutil.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g := model.GranularityWeek
	if opts.Granularity != nil {
		g = *opts.Granularity
	}
	anchor := opts.Anchor
	if anchor.IsZero() {
		anchor = opts.Now()
	}

	return &Controller{
		src:      opts.Source,
		dates:    opts.Dates,
		now:      opts.Now,
		onSelect: opts.OnSelect,
		window:   model.ViewWindow{Anchor: anchor, Granularity: g},
	}, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Window:          c.window,
		SelectedEventID: c.selected,
		Grid:            c.grid,
		Err:             c.err,
		Loading:         c.loading,
	}
}

// Previous moves the anchor back by one unit of the current granularity.
func (c *Controller) Previous(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow {
		w.Anchor = c.dates.Add(w.Anchor, -1, unitOf(w.Granularity))
		return w
	})
}

// Next moves the anchor forward by one unit of the current granularity.
func (c *Controller) Next(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow {
		w.Anchor = c.dates.Add(w.Anchor, 1, unitOf(w.Granularity))
		return w
	})
}

// Today resets the anchor to the current instant.
func (c *Controller) Today(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow {
		w.Anchor = c.now()
		return w
	})
}

// SetGranularity switches the view mode around the same anchor.
func (c *Controller) SetGranularity(ctx context.Context, g model.Granularity) (Snapshot, error) {
	switch g {
	case model.GranularityDay, model.GranularityWeek, model.GranularityMonth:
	default:
		return c.Snapshot(), fmt.Errorf("controller: invalid granularity %d", int(g))
	}
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow {
		w.Granularity = g
		return w
	})
}

// JumpTo moves the anchor to an arbitrary instant (range change).
func (c *Controller) JumpTo(ctx context.Context, anchor time.Time) (Snapshot, error) {
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow {
		w.Anchor = anchor
		return w
	})
}

// Refresh re-fetches the current window without moving it.
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, func(w model.ViewWindow) model.ViewWindow { return w })
}

// SelectEvent records the selected event and notifies the selection sink.
// Navigation state is untouched and nothing is re-fetched.
func (c *Controller) SelectEvent(eventID string) Snapshot {
	c.mu.Lock()
	c.selected = eventID
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.onSelect != nil && eventID != "" {
		c.onSelect(eventID)
	}
	return snap
}

// ClearSelection drops the selected event.
func (c *Controller) ClearSelection() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
	return c.snapshotLocked()
}

// transition applies step to the window, cancels any in-flight fetch, then
// fetches and renders the new window. Only the latest transition may
// publish its result.
func (c *Controller) transition(ctx context.Context, step func(model.ViewWindow) model.ViewWindow) (Snapshot, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.window = step(c.window)
	c.gen++
	gen := c.gen
	window := c.window
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.loading = true
	c.err = nil
	c.mu.Unlock()
	defer cancel()

	start, end := layout.WindowRange(c.dates, window)
	appLog.Debug("controller: fetching window",
		"granularity", window.Granularity.String(),
		"anchor", window.Anchor.Format(time.RFC3339),
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339),
	)

	events, fetchErr := c.src.FetchEvents(fetchCtx, start, end)

	var grid layout.Grid
	if fetchErr == nil {
		grid = layout.Build(c.dates, window, events)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		metrics.SupersededFetches.Inc()
		appLog.Debug("controller: discarding superseded fetch", "generation", gen, "current", c.gen)
		return c.snapshotLocked(), ErrSuperseded
	}

	c.loading = false
	c.cancel = nil
	if fetchErr != nil {
		metrics.FetchFailures.Inc()
		appLog.Error("controller: event fetch failed; keeping previous layout", fetchErr,
			"granularity", window.Granularity.String(),
			"anchor", window.Anchor.Format(time.RFC3339),
		)
		c.err = fetchErr
		return c.snapshotLocked(), fetchErr
	}

	c.err = nil
	c.grid = &grid
	return c.snapshotLocked(), nil
}

func unitOf(g model.Granularity) dateutil.Unit {
	switch g {
	case model.GranularityDay:
		return dateutil.Day
	case model.GranularityMonth:
		return dateutil.Month
	default:
		return dateutil.Week
	}
}
