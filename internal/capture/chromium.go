package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	appLog "schedcal/internal/log"
)

// Default capture parameters. The /calendar page lays out for this size.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 1400
	DefaultTimeoutSec = 30

	readySelector = `[data-ready="true"]`
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar?view=week".
	URL string

	// OutputPath is where the PNG screenshot is written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. Default DefaultTimeoutSec.
	Timeout time.Duration
}

// PageURL builds the /calendar URL for base (e.g. "http://127.0.0.1:8080")
// and an optional view and anchor.
func PageURL(base, view, anchor string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/calendar")
	if err != nil {
		return "", fmt.Errorf("capture: bad base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("capture: base URL %q needs scheme and host", base)
	}
	q := url.Values{}
	if view != "" {
		q.Set("view", view)
	}
	if anchor != "" {
		q.Set("anchor", anchor)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CalendarPNG drives headless Chromium through chromedp: it navigates to
// opts.URL, waits for the page's data-ready marker, and writes a full-page
// PNG to opts.OutputPath.
func CalendarPNG(parentCtx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	began := time.Now()
	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// let the last paint settle
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("calendar captured",
		"path", opts.OutputPath,
		"bytes", len(png),
		"elapsed_ms", time.Since(began).Milliseconds(),
	)
	return nil
}
