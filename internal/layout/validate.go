package layout

import (
	"errors"
	"fmt"

	"schedcal/internal/model"
)

// ErrMalformedEvent is the parent of every ingestion rejection reason.
var ErrMalformedEvent = errors.New("malformed event")

var (
	ErrMissingID           = fmt.Errorf("%w: missing id", ErrMalformedEvent)
	ErrDuplicateID         = fmt.Errorf("%w: duplicate id", ErrMalformedEvent)
	ErrMissingTimestamp    = fmt.Errorf("%w: missing or unparsable timestamp", ErrMalformedEvent)
	ErrNonPositiveDuration = fmt.Errorf("%w: end is not after start", ErrMalformedEvent)
)

// Issue is a data-integrity warning about one input event.
type Issue struct {
	EventID string
	Title   string
	Err     error
}

func (i Issue) Error() string {
	return fmt.Sprintf("event %q: %v", i.EventID, i.Err)
}

func (i Issue) Unwrap() error {
	return i.Err
}

// Validate splits events into the ones the layout can render and the ones it
// must skip. Rejected events are reported, never fatal. For duplicate IDs the
// first occurrence wins.
func Validate(events []model.Event) ([]model.Event, []Issue) {
	ok := make([]model.Event, 0, len(events))
	var issues []Issue
	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		var err error
		switch {
		case e.ID == "":
			err = ErrMissingID
		case e.Start.IsZero() || e.End.IsZero():
			err = ErrMissingTimestamp
		case !e.End.After(e.Start):
			err = ErrNonPositiveDuration
		default:
			if _, dup := seen[e.ID]; dup {
				err = ErrDuplicateID
			}
		}
		if err != nil {
			issues = append(issues, Issue{EventID: e.ID, Title: e.Title, Err: err})
			continue
		}
		seen[e.ID] = struct{}{}
		ok = append(ok, e)
	}

	return ok, issues
}
