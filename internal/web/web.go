package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schedcal/internal/config"
	"schedcal/internal/controller"
	"schedcal/internal/dateutil"
	appLog "schedcal/internal/log"
)

// Options wires the server to the rest of the application.
type Options struct {
	// Source backs the stateless /api/layout endpoint.
	Source controller.EventSource

	// Controller backs /api/calendar and /calendar.
	Controller *controller.Controller

	// Dates must match the controller's calendar.
	Dates dateutil.Calendar

	// Sync, if set, is exposed as POST /api/sync.
	Sync func(ctx context.Context) error

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server provides the HTTP API and the HTML calendar page.
type Server struct {
	cfg  *config.Config
	opts Options
	mux  *http.ServeMux
	page *template.Template
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("web: config is nil")
	}
	if opts.Source == nil || opts.Controller == nil {
		return nil, errors.New("web: source and controller are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:  cfg,
		opts: opts,
		mux:  http.NewServeMux(),
		page: page,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// Blank credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the server on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/layout", s.handleLayout)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /api/calendar/previous", s.navigate(s.opts.Controller.Previous))
	s.mux.HandleFunc("POST /api/calendar/next", s.navigate(s.opts.Controller.Next))
	s.mux.HandleFunc("POST /api/calendar/today", s.navigate(s.opts.Controller.Today))
	s.mux.HandleFunc("POST /api/calendar/refresh", s.navigate(s.opts.Controller.Refresh))
	s.mux.HandleFunc("POST /api/calendar/view", s.handleSetView)
	s.mux.HandleFunc("POST /api/calendar/jump", s.handleJump)
	s.mux.HandleFunc("POST /api/calendar/select", s.handleSelect)
	s.mux.HandleFunc("DELETE /api/calendar/select", s.handleClearSelection)

	if s.opts.Sync != nil {
		s.mux.HandleFunc("POST /api/sync", s.handleSync)
	}

	s.mux.HandleFunc("GET /calendar", s.handlePage)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
