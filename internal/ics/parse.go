package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// idNamespace seeds deterministic IDs for VEVENTs without a UID.
var idNamespace = uuid.MustParse("5b0f7c1e-2d8a-4f55-9a0e-6c1d3b7e9f21")

// ParseICS converts one ICS payload into events.
//
//   - DTSTART/DTEND are resolved with the library's TZID handling. Floating
//     values are wall times in loc; all-day (VALUE=DATE) events span whole
//     days in loc.
//   - A missing DTEND means one day for all-day events and zero duration
//     otherwise; the layout engine reports the latter as malformed.
//   - RRULEs are not expanded: only the first instance is returned.
//   - RECURRENCE-ID overrides become separate events with their own ID.
//
// VEVENTs that cannot be read are logged and skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		e, err := parseVEvent(src, ve, loc)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, e)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	e := model.Event{
		SourceID:    src.ID,
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Notes:       propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		MeetingLink: propValue(ve, ical.ComponentPropertyUrl),
		Organizer:   mailbox(propValue(ve, ical.ComponentPropertyOrganizer)),
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if a := mailbox(p.Value); a != "" {
			e.Attendees = append(e.Attendees, a)
		}
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return e, errors.New("ics: missing DTSTART")
	}
	allDay := isDateValue(startProp)

	start, err := eventTime(ve, startProp, allDay, loc)
	if err != nil {
		return e, fmt.Errorf("ics: DTSTART %q: %w", startProp.Value, err)
	}
	e.Start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, err := eventTime(ve, endProp, allDay, loc)
		if err != nil {
			return e, fmt.Errorf("ics: DTEND %q: %w", endProp.Value, err)
		}
		e.End = end
	} else if allDay {
		e.End = start.AddDate(0, 0, 1)
	} else {
		e.End = start
	}

	if rr := ve.GetProperty(ical.ComponentPropertyRrule); rr != nil {
		appLog.Debug("ics: recurrence not expanded", "id", src.ID, "rrule", rr.Value)
	}

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		key := src.ID + "\x00" + e.Title + "\x00" + e.Start.UTC().Format(time.RFC3339)
		uid = uuid.NewSHA1(idNamespace, []byte(key)).String()
	}
	e.ID = src.ID + ":" + uid
	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil && rid.Value != "" {
		e.ID += "#" + rid.Value
	}

	return e, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// eventTime reads a DTSTART/DTEND property. All-day dates are pinned to
// midnight in loc so they line up with the display calendar's days.
func eventTime(ve *ical.VEvent, p *ical.IANAProperty, allDay bool, loc *time.Location) (time.Time, error) {
	if allDay {
		return time.ParseInLocation("20060102", strings.TrimSpace(p.Value), loc)
	}

	// Floating values belong to the calendar's zone, not the library's default.
	if isFloating(p) {
		return parseICSTime(p, loc)
	}

	var (
		t   time.Time
		err error
	)
	switch ical.ComponentProperty(p.IANAToken) {
	case ical.ComponentPropertyDtEnd:
		t, err = ve.GetEndAt()
	default:
		t, err = ve.GetStartAt()
	}
	if err == nil && !t.IsZero() {
		return t, nil
	}
	return parseICSTime(p, loc)
}

// isFloating reports a DATE-TIME with neither a UTC suffix nor a TZID.
func isFloating(p *ical.IANAProperty) bool {
	if strings.HasSuffix(strings.TrimSpace(p.Value), "Z") {
		return false
	}
	_, ok := p.ICalParameters["TZID"]
	return !ok
}

// parseICSTime reads UTC, TZID'd and floating DATE-TIME values. Floating
// values are read in loc.
func parseICSTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if tz, err := time.LoadLocation(tzs[0]); err == nil {
			loc = tz
		}
	}
	return time.ParseInLocation("20060102T150405", v, loc)
}

// mailbox strips a "mailto:" prefix.
func mailbox(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}
