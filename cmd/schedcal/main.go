package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"schedcal/internal/capture"
	"schedcal/internal/config"
	"schedcal/internal/controller"
	"schedcal/internal/dateutil"
	"schedcal/internal/ics"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
	"schedcal/internal/refresh"
	"schedcal/internal/store"
	"schedcal/internal/textview"
	"schedcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	view        string
	date        string
	capturePath string
	importPath  string
}

func init() {
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env loaded", "reason", err.Error())
	}
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("schedcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"import", flags.importPath,
		"capture", flags.capturePath,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("schedcal failed", err)
		os.Exit(1)
	}
	appLog.Info("schedcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", envOr("SCHEDCAL_CONFIG", "./schedcal.yaml"), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", os.Getenv("SCHEDCAL_LISTEN"), "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Sync once, print the requested window and exit")
	flag.StringVar(&cfg.view, "view", "", "View granularity: day, week or month (default from config)")
	flag.StringVar(&cfg.date, "date", "", `Anchor date: 2024-01-31, RFC 3339 or text like "next friday"`)
	flag.StringVar(&cfg.capturePath, "capture", "", "With -once, also write a PNG of the calendar page to this path")
	flag.StringVar(&cfg.importPath, "import", "", "Merge the events of a local .ics file into the store before starting")

	flag.Parse()

	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// app is the wired application.
type app struct {
	conf   *config.Config
	dates  dateutil.Calendar
	store  *store.Store
	syncer *refresh.Syncer
	ctrl   *controller.Controller
	server *web.Server
	window model.ViewWindow
}

func build(ctx context.Context, conf *config.Config, flags flagConfig) (*app, error) {
	loc := conf.Location()
	weekStart, err := dateutil.ParseWeekStart(conf.WeekStart)
	if err != nil {
		return nil, err
	}
	dates := dateutil.New(loc, weekStart)

	view := flags.view
	if view == "" {
		view = conf.DefaultView
	}
	g, err := model.ParseGranularity(view)
	if err != nil {
		return nil, err
	}
	anchor, err := dateutil.ParseAnchor(flags.date, time.Now(), loc)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, conf.Database)
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.ID, Name: c.Name, URL: c.URL})
	}
	syncer := refresh.New(ics.NewFetcher(conf.CacheDir, nil), st, sources, loc)

	ctrl, err := controller.New(controller.Options{
		Source:      st,
		Dates:       dates,
		Anchor:      anchor,
		Granularity: &g,
		OnSelect: func(id string) {
			appLog.Info("event selected", "id", id)
		},
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	server, err := web.NewServer(conf, web.Options{
		Source:     st,
		Controller: ctrl,
		Dates:      dates,
		Sync: func(ctx context.Context) error {
			_, err := syncer.Run(ctx)
			return err
		},
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		conf:   conf,
		dates:  dates,
		store:  st,
		syncer: syncer,
		ctrl:   ctrl,
		server: server,
		window: model.ViewWindow{Anchor: anchor, Granularity: g},
	}, nil
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	a, err := build(ctx, conf, flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if flags.importPath != "" {
		if err := a.importFile(ctx, flags.importPath); err != nil {
			return err
		}
	}

	if flags.once {
		return a.runOnce(ctx, flags)
	}
	return a.runDaemon(ctx)
}

func (a *app) importFile(ctx context.Context, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if _, err := a.syncer.Import(ctx, filepath.Base(path), body); err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	return nil
}

// runDaemon syncs in the background on the cron schedule and serves HTTP
// until ctx is cancelled.
func (a *app) runDaemon(ctx context.Context) error {
	a.syncer.OnSynced(func(ctx context.Context) {
		a.ctrl.Refresh(ctx)
	})
	if err := a.syncer.Start(ctx, a.conf.RefreshCron, 2*time.Minute); err != nil {
		return err
	}
	defer a.syncer.Stop()

	go func() {
		if _, err := a.syncer.Run(ctx); err != nil {
			appLog.Warn("initial sync incomplete", "error", err.Error())
		}
		a.ctrl.Refresh(ctx)
	}()

	return a.server.Serve(ctx)
}

// runOnce syncs, prints the window and optionally captures the HTML page.
func (a *app) runOnce(ctx context.Context, flags flagConfig) error {
	if _, err := a.syncer.Run(ctx); err != nil {
		appLog.Warn("sync incomplete; rendering stored events", "error", err.Error())
	}

	snap, err := a.ctrl.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := textview.Render(os.Stdout, *snap.Grid, textview.Options{}); err != nil {
		return err
	}

	if flags.capturePath == "" {
		return nil
	}
	return a.captureOnce(ctx, flags)
}

func (a *app) captureOnce(ctx context.Context, flags flagConfig) error {
	serveCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(serveCtx) }()
	defer func() {
		stop()
		<-errCh
	}()

	base := "http://" + a.conf.Listen
	if err := waitHealthy(ctx, base, 5*time.Second); err != nil {
		return err
	}

	target, err := capture.PageURL(base, a.window.Granularity.String(), flags.date)
	if err != nil {
		return err
	}
	return capture.CalendarPNG(ctx, capture.Options{URL: target, OutputPath: flags.capturePath})
}

// waitHealthy polls /health until the server answers.
func waitHealthy(ctx context.Context, base string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.New("server did not become healthy on " + base)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
