package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"schedcal/internal/ics"
	"schedcal/internal/store"
)

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//schedcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:a\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240102T090000Z\r\n" +
	"DTEND:20240102T100000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:b\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240102T110000Z\r\n" +
	"DTEND:20240102T120000Z\r\n" +
	"SUMMARY:Review\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type fakeFetcher struct {
	bodies map[string]string
}

func (f fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, error) {
	var (
		results []ics.FetchResult
		errs    []error
	)
	for _, src := range sources {
		body, ok := f.bodies[src.ID]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, errors.New("unreachable")))
			continue
		}
		results = append(results, ics.FetchResult{Source: src, Body: []byte(body)})
	}
	return results, errors.Join(errs...)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunStoresEventsPerSource(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	sources := []ics.Source{{ID: "work"}, {ID: "down"}}
	syncer := New(fakeFetcher{bodies: map[string]string{"work": feed}}, st, sources, time.UTC)

	results, err := syncer.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "down:") {
		t.Fatalf("expected joined error for failing source, got %v", err)
	}
	if len(results) != 2 || results[0].Events != 2 || !errors.Is(results[1].Err, ErrNotFetched) {
		t.Fatalf("unexpected results %+v", results)
	}

	events, err := st.FetchEvents(ctx,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != "work:a" || events[0].SourceID != "work" {
		t.Fatalf("unexpected stored events %+v", events)
	}
}

func TestRunReplacesPreviousEvents(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	f := fakeFetcher{bodies: map[string]string{"work": feed}}
	syncer := New(f, st, []ics.Source{{ID: "work"}}, time.UTC)
	if _, err := syncer.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// drop event b from the feed
	i := strings.Index(feed, "BEGIN:VEVENT\r\nUID:b")
	f.bodies["work"] = feed[:i] + "END:VCALENDAR\r\n"
	if _, err := syncer.Run(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := st.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestRunWithHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/work.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	ctx := context.Background()
	st := openStore(t)
	sources := []ics.Source{
		{ID: "work", URL: srv.URL + "/work.ics"},
		{ID: "gone", URL: srv.URL + "/gone.ics"},
	}
	syncer := New(ics.NewFetcher(t.TempDir(), srv.Client()), st, sources, time.UTC)

	results, err := syncer.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "gone:") {
		t.Fatalf("expected error naming the missing feed, got %v", err)
	}
	if results[0].Err != nil || results[0].Events != 2 || !errors.Is(results[1].Err, ErrNotFetched) {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestRunPrunesUnconfiguredSources(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	f := fakeFetcher{bodies: map[string]string{"work": feed, "home": feed}}

	if _, err := New(f, st, []ics.Source{{ID: "work"}, {ID: "home"}}, time.UTC).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := New(f, st, nil, time.UTC).Import(ctx, "trip.ics", []byte(feed)); err != nil {
		t.Fatal(err)
	}

	// "home" was removed from the configuration.
	if _, err := New(f, st, []ics.Source{{ID: "work"}}, time.UTC).Run(ctx); err != nil {
		t.Fatal(err)
	}

	ids, err := st.SourceIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != ImportSourceID || ids[1] != "work" {
		t.Fatalf("unexpected sources after prune: %v", ids)
	}
}

func TestRunKeepsUnreachableSourceEvents(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	f := fakeFetcher{bodies: map[string]string{"work": feed}}
	syncer := New(f, st, []ics.Source{{ID: "work"}}, time.UTC)
	if _, err := syncer.Run(ctx); err != nil {
		t.Fatal(err)
	}

	delete(f.bodies, "work")
	if _, err := syncer.Run(ctx); err == nil {
		t.Fatal("expected error for unreachable feed")
	}
	if n, err := st.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestImportMergesEvents(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	syncer := New(fakeFetcher{}, st, nil, time.UTC)

	n, err := syncer.Import(ctx, "trip.ics", []byte(feed))
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	// Importing the same file again updates in place.
	if _, err := syncer.Import(ctx, "trip.ics", []byte(feed)); err != nil {
		t.Fatal(err)
	}

	events, err := st.FetchEvents(ctx,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != "import:a" || events[0].SourceID != ImportSourceID {
		t.Fatalf("unexpected imported events %+v", events)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	syncer := New(fakeFetcher{}, openStore(t), nil, time.UTC)
	if err := syncer.Start(context.Background(), "not a cron spec", time.Second); err == nil {
		syncer.Stop()
		t.Fatal("expected error for invalid spec")
	}
	if err := syncer.Start(context.Background(), "@every 1h", time.Second); err != nil {
		t.Fatal(err)
	}
	if err := syncer.Start(context.Background(), "@every 1h", time.Second); err == nil {
		t.Fatal("expected error when started twice")
	}
	syncer.Stop()
}
