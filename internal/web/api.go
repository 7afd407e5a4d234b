package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"schedcal/internal/controller"
	"schedcal/internal/dateutil"
	"schedcal/internal/layout"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// layoutResponse is the JSON shape of a rendered grid.
// Offsets and heights are minutes from the start of the day; left and
// width are percentages of the column.
type layoutResponse struct {
	Granularity string     `json:"granularity"`
	Anchor      time.Time  `json:"anchor"`
	RangeStart  time.Time  `json:"range_start"`
	RangeEnd    time.Time  `json:"range_end"`
	Timezone    string     `json:"timezone"`
	WeekStart   string     `json:"week_start"`
	Days        []dayDTO   `json:"days"`
	Issues      []issueDTO `json:"issues,omitempty"`
}

type dayDTO struct {
	Date          string     `json:"date"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	LengthMinutes float64    `json:"length_minutes"`
	Blocks        []blockDTO `json:"blocks"`
	Groups        []groupDTO `json:"groups"`
}

type blockDTO struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	OffsetMinutes float64   `json:"offset_minutes"`
	HeightMinutes float64   `json:"height_minutes"`
	LeftPct       float64   `json:"left_pct"`
	WidthPct      float64   `json:"width_pct"`
	Location      string    `json:"location,omitempty"`
	Attendees     []string  `json:"attendees,omitempty"`
	Organizer     string    `json:"organizer,omitempty"`
	MeetingLink   string    `json:"meeting_link,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	SourceID      string    `json:"source_id,omitempty"`
}

type groupDTO struct {
	Members []string `json:"members"`
	Tracks  int      `json:"tracks"`
}

type issueDTO struct {
	EventID string `json:"event_id"`
	Title   string `json:"title,omitempty"`
	Reason  string `json:"reason"`
}

// calendarResponse is the JSON shape of the controller state.
type calendarResponse struct {
	Granularity     string          `json:"granularity"`
	Anchor          time.Time       `json:"anchor"`
	SelectedEventID string          `json:"selected_event_id,omitempty"`
	Loading         bool            `json:"loading"`
	Stale           bool            `json:"stale"`
	Error           string          `json:"error,omitempty"`
	Layout          *layoutResponse `json:"layout,omitempty"`
}

func (s *Server) layoutDTO(g layout.Grid) *layoutResponse {
	start, end := g.Range()
	resp := &layoutResponse{
		Granularity: g.Window.Granularity.String(),
		Anchor:      g.Window.Anchor,
		RangeStart:  start,
		RangeEnd:    end,
		Timezone:    s.opts.Dates.Location().String(),
		WeekStart:   strings.ToLower(s.opts.Dates.WeekStart().String()),
		Days:        make([]dayDTO, 0, len(g.Days)),
	}

	for _, dl := range g.Days {
		d := dayDTO{
			Date:          dl.Day.Key(),
			Start:         dl.Day.Start,
			End:           dl.Day.End,
			LengthMinutes: dl.Day.Length().Minutes(),
			Blocks:        make([]blockDTO, 0, len(dl.Blocks)),
			Groups:        make([]groupDTO, 0, len(dl.Groups)),
		}
		for _, b := range dl.Blocks {
			d.Blocks = append(d.Blocks, blockDTO{
				ID:            b.Event.ID,
				Title:         b.Event.Title,
				Start:         b.Event.Start,
				End:           b.Event.End,
				OffsetMinutes: b.OffsetMinutes(),
				HeightMinutes: b.HeightMinutes(),
				LeftPct:       b.Left,
				WidthPct:      b.Width,
				Location:      b.Event.Location,
				Attendees:     b.Event.Attendees,
				Organizer:     b.Event.Organizer,
				MeetingLink:   b.Event.MeetingLink,
				Notes:         b.Event.Notes,
				SourceID:      b.Event.SourceID,
			})
		}
		for _, gr := range dl.Groups {
			d.Groups = append(d.Groups, groupDTO{Members: gr.Members, Tracks: gr.Tracks})
		}
		resp.Days = append(resp.Days, d)
	}

	for _, is := range g.Issues {
		resp.Issues = append(resp.Issues, issueDTO{EventID: is.EventID, Title: is.Title, Reason: is.Err.Error()})
	}
	return resp
}

func (s *Server) calendarDTO(snap controller.Snapshot) calendarResponse {
	resp := calendarResponse{
		Granularity:     snap.Window.Granularity.String(),
		Anchor:          snap.Window.Anchor,
		SelectedEventID: snap.SelectedEventID,
		Loading:         snap.Loading,
		Stale:           snap.Stale(),
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if snap.Grid != nil {
		resp.Layout = s.layoutDTO(*snap.Grid)
	}
	return resp
}

// parseWindow reads ?view= and ?anchor=, defaulting to the configured view
// and today.
func (s *Server) parseWindow(r *http.Request) (model.ViewWindow, error) {
	q := r.URL.Query()

	view := q.Get("view")
	if view == "" {
		view = s.cfg.DefaultView
	}
	g, err := model.ParseGranularity(view)
	if err != nil {
		return model.ViewWindow{}, err
	}

	anchor, err := dateutil.ParseAnchor(q.Get("anchor"), s.opts.Now(), s.opts.Dates.Location())
	if err != nil {
		return model.ViewWindow{}, err
	}
	return model.ViewWindow{Anchor: anchor, Granularity: g}, nil
}

// render fetches and lays out one window without touching controller state.
func (s *Server) render(ctx context.Context, w model.ViewWindow) (layout.Grid, error) {
	start, end := layout.WindowRange(s.opts.Dates, w)
	events, err := s.opts.Source.FetchEvents(ctx, start, end)
	if err != nil {
		return layout.Grid{}, err
	}
	return layout.Build(s.opts.Dates, w, events), nil
}

// handleLayout renders an arbitrary window.
//
// GET /api/layout?view=week&anchor=2024-01-31
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	grid, err := s.render(r.Context(), window)
	if err != nil {
		appLog.Error("api layout: fetch failed", err, "granularity", window.Granularity.String())
		writeError(w, http.StatusBadGateway, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, s.layoutDTO(grid))
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.calendarDTO(s.opts.Controller.Snapshot()))
}

// navigate adapts a controller transition to an HTTP handler. A superseded
// transition answers 409 with the state that won.
func (s *Server) navigate(step func(context.Context) (controller.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := step(r.Context())
		s.writeTransition(w, snap, err)
	}
}

func (s *Server) writeTransition(w http.ResponseWriter, snap controller.Snapshot, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.calendarDTO(snap))
	case errors.Is(err, controller.ErrSuperseded):
		writeJSON(w, http.StatusConflict, s.calendarDTO(s.opts.Controller.Snapshot()))
	default:
		writeJSON(w, http.StatusBadGateway, s.calendarDTO(snap))
	}
}

// POST /api/calendar/view?g=month
func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	g, err := model.ParseGranularity(r.URL.Query().Get("g"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.opts.Controller.SetGranularity(r.Context(), g)
	s.writeTransition(w, snap, err)
}

// POST /api/calendar/jump?anchor=next+friday
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	anchor, err := dateutil.ParseAnchor(r.URL.Query().Get("anchor"), s.opts.Now(), s.opts.Dates.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.opts.Controller.JumpTo(r.Context(), anchor)
	s.writeTransition(w, snap, err)
}

// POST /api/calendar/select?id=...
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	writeJSON(w, http.StatusOK, s.calendarDTO(s.opts.Controller.SelectEvent(id)))
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.calendarDTO(s.opts.Controller.ClearSelection()))
}

// handleSync pulls the ICS feeds, then re-renders the current window.
// Partial sync failures are reported but still followed by the refresh.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	syncErr := s.opts.Sync(r.Context())
	snap, err := s.opts.Controller.Refresh(r.Context())
	if syncErr != nil {
		appLog.Error("api sync: one or more sources failed", syncErr)
		resp := s.calendarDTO(snap)
		resp.Error = syncErr.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeTransition(w, snap, err)
}
