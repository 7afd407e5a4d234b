package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"schedcal/internal/layout"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePage() (*template.Template, error) {
	t, err := template.ParseFS(templateFS, "templates/calendar.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return t, nil
}

type pageData struct {
	Title      string
	View       string
	Month      bool
	Stale      bool
	Error      string
	Weekdays   []string
	Days       []pageDay
	Selected   *pageBlock
	IssueCount int
}

type pageDay struct {
	Key    string
	Label  string
	Blocks []pageBlock
}

// pageBlock positions are percentages of the day column.
type pageBlock struct {
	ID       string
	Title    string
	Time     string
	Location string
	Top      float64
	Height   float64
	Left     float64
	Width    float64
	Selected bool
}

// handlePage renders the controller's current grid as HTML. With ?view= or
// ?anchor= it renders that window instead, leaving the controller alone.
// The root element carries data-ready="true" once the grid is in the DOM.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Controller.Snapshot()
	grid := snap.Grid
	data := pageData{Stale: snap.Stale()}
	if snap.Err != nil {
		data.Error = snap.Err.Error()
	}

	q := r.URL.Query()
	if q.Has("view") || q.Has("anchor") {
		window, err := s.parseWindow(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g, err := s.render(r.Context(), window)
		if err != nil {
			appLog.Error("calendar page: fetch failed", err)
			http.Error(w, "failed to load events", http.StatusBadGateway)
			return
		}
		grid = &g
		data.Stale = false
		data.Error = ""
	}

	if grid == nil {
		// First render has not happened yet.
		g, err := s.render(r.Context(), snap.Window)
		if err != nil {
			appLog.Error("calendar page: fetch failed", err)
			http.Error(w, "failed to load events", http.StatusBadGateway)
			return
		}
		grid = &g
	}

	s.fillPage(&data, *grid, snap.SelectedEventID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.ExecuteTemplate(w, "calendar.html", data); err != nil {
		appLog.Error("calendar page: template failed", err)
	}
}

func (s *Server) fillPage(data *pageData, g layout.Grid, selected string) {
	data.View = g.Window.Granularity.String()
	data.Month = g.Window.Granularity == model.GranularityMonth
	data.IssueCount = len(g.Issues)

	switch g.Window.Granularity {
	case model.GranularityMonth:
		data.Title = g.Window.Anchor.In(s.opts.Dates.Location()).Format("January 2006")
	case model.GranularityDay:
		data.Title = g.Window.Anchor.In(s.opts.Dates.Location()).Format("Monday, 2 January 2006")
	default:
		if len(g.Days) > 0 {
			first, last := g.Days[0].Day.Date, g.Days[len(g.Days)-1].Day.Date
			data.Title = first.Format("2 Jan") + " – " + last.Format("2 Jan 2006")
		}
	}

	if len(g.Days) >= 7 {
		for _, dl := range g.Days[:7] {
			data.Weekdays = append(data.Weekdays, dl.Day.Date.Weekday().String()[:3])
		}
	}

	for _, dl := range g.Days {
		pd := pageDay{Key: dl.Day.Key(), Label: dl.Day.Date.Format("Mon 2")}
		if data.Month {
			pd.Label = dl.Day.Date.Format("2")
		}
		length := dl.Day.Length()
		loc := dl.Day.Start.Location()
		for _, b := range dl.Blocks {
			pb := pageBlock{
				ID:       b.Event.ID,
				Title:    b.Event.Title,
				Time:     b.Start.In(loc).Format("15:04") + "–" + b.End.In(loc).Format("15:04"),
				Location: b.Event.Location,
				Top:      100 * float64(b.Offset) / float64(length),
				Height:   100 * float64(b.Height) / float64(length),
				Left:     b.Left,
				Width:    b.Width,
				Selected: b.Event.ID == selected,
			}
			if pb.Selected && data.Selected == nil {
				sel := pb
				data.Selected = &sel
			}
			pd.Blocks = append(pd.Blocks, pb)
		}
		data.Days = append(data.Days, pd)
	}
}
