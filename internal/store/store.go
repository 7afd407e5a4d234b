// Package store persists events in SQLite and serves them back by time
// window. It is the default event source for the calendar controller.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

type eventRow struct {
	bun.BaseModel `bun:"table:events"`

	ID       string `bun:"id,pk"`             // required
	SourceID string `bun:"source_id,notnull"` // required
	Title    string `bun:"title,notnull"`

	// UTC unix milliseconds.
	StartMs int64 `bun:"start_ms,notnull"`
	EndMs   int64 `bun:"end_ms,notnull"`

	Location    string   `bun:"location"`
	Attendees   []string `bun:"attendees"`
	Organizer   string   `bun:"organizer"`
	MeetingLink string   `bun:"meeting_link"`
	Notes       string   `bun:"notes"`

	UpdatedAt int64 `bun:"updated_at,notnull"`
}

func toRow(e model.Event, now time.Time) eventRow {
	return eventRow{
		ID:          e.ID,
		SourceID:    e.SourceID,
		Title:       e.Title,
		StartMs:     e.Start.UTC().UnixMilli(),
		EndMs:       e.End.UTC().UnixMilli(),
		Location:    e.Location,
		Attendees:   e.Attendees,
		Organizer:   e.Organizer,
		MeetingLink: e.MeetingLink,
		Notes:       e.Notes,
		UpdatedAt:   now.UTC().Unix(),
	}
}

func (r eventRow) toEvent() model.Event {
	return model.Event{
		ID:          r.ID,
		SourceID:    r.SourceID,
		Title:       r.Title,
		Start:       time.UnixMilli(r.StartMs).UTC(),
		End:         time.UnixMilli(r.EndMs).UTC(),
		Location:    r.Location,
		Attendees:   r.Attendees,
		Organizer:   r.Organizer,
		MeetingLink: r.MeetingLink,
		Notes:       r.Notes,
	}
}

// Store is a bun-backed SQLite event store.
type Store struct {
	db *bun.DB
}

// Open opens (creating if needed) the SQLite database at dsn and ensures the
// schema exists. Use "file::memory:?cache=shared" for a throwaway database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("store: dsn is empty")
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	// Single connection: shared in-memory databases vanish with their last conn.
	sqldb.SetMaxOpenConns(1)

	s := &Store{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.createSchema(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*eventRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("store: create events table: %w", err)
	}
	for _, idx := range []struct {
		name string
		cols []string
	}{
		{"events_window_idx", []string{"start_ms", "end_ms"}},
		{"events_source_idx", []string{"source_id"}},
	} {
		if _, err := s.db.NewCreateIndex().
			Model((*eventRow)(nil)).
			Index(idx.name).
			Column(idx.cols...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("store: create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEvents inserts or updates events by ID.
func (s *Store) UpsertEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	return upsert(ctx, s.db, events)
}

func upsert(ctx context.Context, db bun.IDB, events []model.Event) error {
	now := time.Now()
	rows := make([]eventRow, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			return errors.New("store: event id is blank")
		}
		rows = append(rows, toRow(e, now))
	}

	if _, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("source_id = EXCLUDED.source_id").
		Set("title = EXCLUDED.title").
		Set("start_ms = EXCLUDED.start_ms").
		Set("end_ms = EXCLUDED.end_ms").
		Set("location = EXCLUDED.location").
		Set("attendees = EXCLUDED.attendees").
		Set("organizer = EXCLUDED.organizer").
		Set("meeting_link = EXCLUDED.meeting_link").
		Set("notes = EXCLUDED.notes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("store: upsert %d events: %w", len(rows), err)
	}
	return nil
}

// ReplaceSource atomically swaps every event of sourceID for events.
func (s *Store) ReplaceSource(ctx context.Context, sourceID string, events []model.Event) error {
	if sourceID == "" {
		return errors.New("store: source id is blank")
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*eventRow)(nil)).
			Where("source_id = ?", sourceID).
			Exec(ctx); err != nil {
			return fmt.Errorf("store: clear source %s: %w", sourceID, err)
		}
		if len(events) == 0 {
			return nil
		}
		owned := make([]model.Event, len(events))
		for i, e := range events {
			e.SourceID = sourceID
			owned[i] = e
		}
		return upsert(ctx, tx, owned)
	})
}

// DeleteSource removes all events of a source.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*eventRow)(nil)).
		Where("source_id = ?", sourceID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: delete source %s: %w", sourceID, err)
	}
	return res.RowsAffected()
}

// SourceIDs returns the distinct source IDs that have stored events.
func (s *Store) SourceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.NewSelect().
		Model((*eventRow)(nil)).
		Distinct().
		Column("source_id").
		Order("source_id").
		Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	return ids, nil
}

// FetchEvents returns the events overlapping [start, end), ordered by start.
// Rows with broken timestamps are returned as stored; the layout engine
// reports them.
func (s *Store) FetchEvents(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("start_ms < ?", end.UTC().UnixMilli()).
		Where("end_ms > ?", start.UTC().UnixMilli()).
		OrderExpr("start_ms ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: fetch events: %w", err)
	}

	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	appLog.Debug("store: fetched events",
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339),
		"count", len(events),
	)
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*eventRow)(nil)).Count(ctx)
}
