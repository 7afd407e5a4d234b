package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrUnparsableAnchor = errors.New("dateutil: cannot parse anchor")

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseAnchor resolves user input into an instant. Accepted forms:
//
//   - empty string or "today": now
//   - 2024-01-31 (interpreted in loc)
//   - RFC 3339 timestamps
//   - natural language understood by olebedev/when ("next friday", "in 2 weeks")
func ParseAnchor(text string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "today") || strings.EqualFold(text, "now") {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.In(loc), nil
	}

	r, err := parser.Parse(text, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %w", ErrUnparsableAnchor, text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrUnparsableAnchor, text)
	}
	return r.Time.In(loc), nil
}
