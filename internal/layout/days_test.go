package layout

import (
	"testing"
	"time"
	_ "time/tzdata"

	"schedcal/internal/dateutil"
	"schedcal/internal/model"
)

func TestResolveDaysDay(t *testing.T) {
	d := dateutil.Default()
	anchor := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)

	days := ResolveDays(d, anchor, model.GranularityDay)
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !days[0].Start.Equal(want) || !days[0].End.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected day bounds: %+v", days[0])
	}
}

func TestResolveDaysWeekSundayStart(t *testing.T) {
	d := dateutil.Default()
	// Wednesday.
	anchor := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	days := ResolveDays(d, anchor, model.GranularityWeek)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	if days[0].Key() != "2023-12-31" || days[0].Date.Weekday() != time.Sunday {
		t.Fatalf("expected week to start Sunday 2023-12-31, got %s (%s)", days[0].Key(), days[0].Date.Weekday())
	}
	if days[6].Key() != "2024-01-06" {
		t.Fatalf("expected week to end 2024-01-06, got %s", days[6].Key())
	}
	for i := 1; i < len(days); i++ {
		if !days[i].Start.Equal(days[i-1].End) {
			t.Fatalf("days %d and %d are not contiguous", i-1, i)
		}
	}
}

func TestResolveDaysWeekMondayStart(t *testing.T) {
	d := dateutil.New(time.UTC, time.Monday)
	anchor := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC) // Sunday

	days := ResolveDays(d, anchor, model.GranularityWeek)
	if days[0].Key() != "2024-01-01" {
		t.Fatalf("expected Monday 2024-01-01, got %s", days[0].Key())
	}
}

func TestResolveDaysMonthAlwaysWholeWeeks(t *testing.T) {
	for _, ws := range []time.Weekday{time.Sunday, time.Monday} {
		d := dateutil.New(time.UTC, ws)
		for year := 2023; year <= 2026; year++ {
			for month := time.January; month <= time.December; month++ {
				anchor := time.Date(year, month, 17, 8, 0, 0, 0, time.UTC)
				days := ResolveDays(d, anchor, model.GranularityMonth)

				if len(days)%7 != 0 {
					t.Fatalf("%d-%02d (week start %s): %d days is not a multiple of 7", year, month, ws, len(days))
				}
				first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
				foundFirst := false
				for _, day := range days[:7] {
					if day.Start.Equal(first) {
						foundFirst = true
					}
				}
				if !foundFirst {
					t.Fatalf("%d-%02d: the 1st is not in the first row", year, month)
				}
				last := first.AddDate(0, 1, -1)
				lastRow := days[len(days)-7:]
				foundLast := false
				for _, day := range lastRow {
					if day.Start.Equal(last) {
						foundLast = true
					}
				}
				if !foundLast {
					t.Fatalf("%d-%02d: the last day is not in the last row", year, month)
				}
				if days[0].Date.Weekday() != ws {
					t.Fatalf("%d-%02d: grid starts on %s", year, month, days[0].Date.Weekday())
				}
			}
		}
	}
}

func TestResolveDaysMonthFebruary2015FitsFourRows(t *testing.T) {
	// Feb 2015 starts on a Sunday and has 28 days.
	days := ResolveDays(dateutil.Default(), time.Date(2015, 2, 10, 0, 0, 0, 0, time.UTC), model.GranularityMonth)
	if len(days) != 28 {
		t.Fatalf("expected 28 days, got %d", len(days))
	}
}

func TestResolveDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	d := dateutil.New(loc, time.Sunday)
	anchor := time.Date(2024, 3, 10, 12, 0, 0, 0, loc)

	days := ResolveDays(d, anchor, model.GranularityDay)
	if got := days[0].Length(); got != 23*time.Hour {
		t.Fatalf("expected 23h day on spring-forward, got %s", got)
	}
}

func TestResolveDaysMidnightSkippedByDST(t *testing.T) {
	// Santiago springs forward at 00:00 on 2024-09-08; that day starts at 01:00.
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Fatal(err)
	}
	d := dateutil.New(loc, time.Sunday)

	days := ResolveDays(d, time.Date(2024, 9, 10, 12, 0, 0, 0, loc), model.GranularityWeek)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	want := []string{"2024-09-08", "2024-09-09", "2024-09-10", "2024-09-11", "2024-09-12", "2024-09-13", "2024-09-14"}
	for i, day := range days {
		if got := day.Key(); got != want[i] {
			t.Fatalf("day %d: key %s, want %s", i, got, want[i])
		}
		if got := day.Start.In(loc).Format("2006-01-02"); got != want[i] {
			t.Fatalf("day %d starts on %s", i, got)
		}
		if i > 0 && !days[i-1].End.Equal(day.Start) {
			t.Fatalf("day %d does not start where day %d ends", i, i-1)
		}
	}
	if got := days[0].Length(); got != 23*time.Hour {
		t.Fatalf("expected 23h on 2024-09-08, got %s", got)
	}
	if got := days[0].Start.In(loc).Hour(); got != 1 {
		t.Fatalf("2024-09-08 should start at 01:00, got %02d:00", got)
	}

	w := model.ViewWindow{Anchor: time.Date(2024, 9, 10, 12, 0, 0, 0, loc), Granularity: model.GranularityWeek}
	grid := Build(d, w, []model.Event{{
		ID:    "early",
		Start: time.Date(2024, 9, 10, 0, 15, 0, 0, loc),
		End:   time.Date(2024, 9, 10, 0, 45, 0, 0, loc),
	}})
	for _, dl := range grid.Days {
		if len(dl.Blocks) == 0 {
			continue
		}
		if dl.Day.Key() != "2024-09-10" {
			t.Fatalf("early event placed on %s", dl.Day.Key())
		}
		if b := dl.Blocks[0]; b.Offset != 15*time.Minute || b.Height != 30*time.Minute {
			t.Fatalf("offset=%s height=%s", b.Offset, b.Height)
		}
	}
	if grid.EventCount() != 1 {
		t.Fatalf("expected the event once, got %d", grid.EventCount())
	}
}

func TestBounds(t *testing.T) {
	d := dateutil.Default()
	days := ResolveDays(d, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), model.GranularityWeek)
	start, end := Bounds(days)
	if !start.Equal(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected span %s - %s", start, end)
	}

	start, end = Bounds(nil)
	if !start.IsZero() || !end.IsZero() {
		t.Fatal("expected zero span for no days")
	}
}
