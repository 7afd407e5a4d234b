// Package refresh keeps the event store in step with the configured ICS
// subscriptions.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"schedcal/internal/ics"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
)

// ImportSourceID owns events loaded with Import. Pruning leaves it alone.
const ImportSourceID = "import"

// ErrNotFetched marks a source whose feed could not be downloaded in a run.
var ErrNotFetched = errors.New("refresh: feed not fetched")

// Store is the part of the event store a sync writes to.
type Store interface {
	ReplaceSource(ctx context.Context, sourceID string, events []model.Event) error
	UpsertEvents(ctx context.Context, events []model.Event) error
	SourceIDs(ctx context.Context) ([]string, error)
	DeleteSource(ctx context.Context, sourceID string) (int64, error)
}

// Fetcher downloads raw ICS bodies.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error)
}

// Syncer runs fetch → parse → replace for every source.
type Syncer struct {
	fetcher Fetcher
	store   Store
	sources []ics.Source
	loc     *time.Location

	// serialises runs triggered by cron and by callers
	mu sync.Mutex

	cron     *cron.Cron
	onSynced func(ctx context.Context)
}

// Result summarises one source of a run.
type Result struct {
	SourceID  string
	Events    int
	FromCache bool
	Err       error
}

// New creates a Syncer.
func New(fetcher Fetcher, store Store, sources []ics.Source, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{
		fetcher: fetcher,
		store:   store,
		sources: sources,
		loc:     loc,
	}
}

// Run synchronises every source once, then drops stored events of sources
// that are no longer configured. A failing source keeps whatever the store
// already holds for it; failures are joined into the returned error.
func (s *Syncer) Run(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]ics.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.ID != "" {
			pending = append(pending, src)
		}
	}

	var errs []error
	fetched, err := s.fetcher.FetchAll(ctx, pending)
	if err != nil {
		errs = append(errs, err)
	}
	bodies := make(map[string]ics.FetchResult, len(fetched))
	for _, fr := range fetched {
		bodies[fr.Source.ID] = fr
	}

	results := make([]Result, 0, len(s.sources))
	failed := 0
	for _, src := range s.sources {
		r := Result{SourceID: src.ID}
		fr, ok := bodies[src.ID]
		switch {
		case src.ID == "":
			r.Err = errors.New("refresh: source id is empty")
			errs = append(errs, r.Err)
		case !ok:
			r.Err = ErrNotFetched
		default:
			r = s.apply(ctx, src, fr)
			if r.Err != nil {
				appLog.Error("sync source failed", r.Err, "id", src.ID)
				errs = append(errs, fmt.Errorf("%s: %w", src.ID, r.Err))
			}
		}

		if r.Err != nil {
			failed++
			metrics.SyncErrors.WithLabelValues(src.ID).Inc()
		} else {
			metrics.SyncedEvents.WithLabelValues(src.ID).Set(float64(r.Events))
		}
		results = append(results, r)
	}

	if err := s.prune(ctx); err != nil {
		errs = append(errs, err)
	}

	appLog.Info("sync completed", "sources", len(s.sources), "failed", failed)
	return results, errors.Join(errs...)
}

func (s *Syncer) apply(ctx context.Context, src ics.Source, fetched ics.FetchResult) Result {
	r := Result{SourceID: src.ID, FromCache: fetched.FromCache}

	events, err := ics.ParseICS(src, fetched.Body, s.loc)
	if err != nil {
		r.Err = err
		return r
	}
	if err := s.store.ReplaceSource(ctx, src.ID, events); err != nil {
		r.Err = err
		return r
	}
	r.Events = len(events)
	return r
}

// prune deletes the events of stored sources missing from the configuration.
func (s *Syncer) prune(ctx context.Context) error {
	stored, err := s.store.SourceIDs(ctx)
	if err != nil {
		return err
	}
	configured := make(map[string]bool, len(s.sources)+1)
	configured[ImportSourceID] = true
	for _, src := range s.sources {
		configured[src.ID] = true
	}

	var errs []error
	for _, id := range stored {
		if configured[id] {
			continue
		}
		n, err := s.store.DeleteSource(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.SyncedEvents.DeleteLabelValues(id)
		appLog.Info("removed events of unconfigured source", "id", id, "events", n)
	}
	return errors.Join(errs...)
}

// Import parses an ICS file and merges its events into the store under
// ImportSourceID. Imported events survive syncs and pruning.
func (s *Syncer) Import(ctx context.Context, name string, body []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := ics.ParseICS(ics.Source{ID: ImportSourceID, Name: name}, body, s.loc)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpsertEvents(ctx, events); err != nil {
		return 0, err
	}
	appLog.Info("ics file imported", "name", name, "events", len(events))
	return len(events), nil
}

// OnSynced registers fn to run after every scheduled sync.
func (s *Syncer) OnSynced(fn func(ctx context.Context)) {
	s.onSynced = fn
}

// Start schedules Run on a cron spec ("@every 15m", "*/10 * * * *").
// Each tick gets its own timeout derived from ctx.
func (s *Syncer) Start(ctx context.Context, spec string, timeout time.Duration) error {
	if s.cron != nil {
		return errors.New("refresh: already started")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s.Run(runCtx)
		if s.onSynced != nil {
			s.onSynced(runCtx)
		}
	}); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	appLog.Info("refresh scheduled", "spec", spec, "sources", len(s.sources))
	return nil
}

// Stop stops the schedule and waits for a running sync to finish.
func (s *Syncer) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
