// Package server exposes a sweep's progress over HTTP: a browsable page, the
// raw state file, archived history and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/history"
	"github.com/odvcencio/bcp/pkg/report"
	"github.com/odvcencio/bcp/pkg/state"
	"github.com/odvcencio/bcp/pkg/telemetry"
)

const defaultHistoryLimit = 20

// Options configures the HTTP server.
type Options struct {
	Listen  string
	Store   *state.Store
	Metrics *telemetry.Metrics
	History *history.Archive
	Logger  *slog.Logger
}

// Server serves read-only views of the sweep state. It never writes the state
// file; a running sweep in another process owns it.
type Server struct {
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server
}

// New builds a server. Metrics defaults to a fresh registry.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/", s.handleIndex)
	router.Get("/state.json", s.handleState)
	router.Get("/history.json", s.handleHistory)
	router.Get("/healthz", s.handleHealthz)
	router.Method(http.MethodGet, "/metrics", s.metricsHandler())
	return router
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !isLoopbackBindAddress(s.opts.Listen) {
		s.logger.Warn("serving sweep state on a non-loopback address without authentication", "listen", s.opts.Listen)
	}

	s.httpServer = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "listen", s.opts.Listen, "state", s.opts.Store.Path())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err, ok := <-serverErr:
		if !ok {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Store.Read()
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}

	var page []byte
	if st.Complete() {
		var rep report.Report
		rep, err = report.Build(st)
		if err == nil {
			page, err = report.HTML(rep)
		}
	} else {
		page, err = report.Page(report.Progress(st))
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, internalError(err, "render page"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(page)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Store.Read()
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		respondError(w, http.StatusNotFound, bcperrors.New(bcperrors.ErrCodeInvalidInput, "history archive is disabled").
			WithRemediation("set history.enabled in .bcp/config.yaml"))
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultHistoryLimit)
	sweeps, err := s.opts.History.Sweeps(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, internalError(err, "list archived sweeps"))
		return
	}
	respondJSON(w, map[string]any{"sweeps": sweeps})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// metricsHandler refreshes the progress gauges from the state file before
// each scrape, since the sweep itself may run in another process.
func (s *Server) metricsHandler() http.Handler {
	inner := promhttp.HandlerFor(s.opts.Metrics.Gatherer(), promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st, err := s.opts.Store.Read(); err == nil {
			s.opts.Metrics.SetProgress(st.Next(), len(st.Plan.Cases))
		}
		inner.ServeHTTP(w, r)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case bcperrors.IsCode(err, bcperrors.ErrCodeStateCorrupt), bcperrors.IsCode(err, bcperrors.ErrCodeInvariant):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return def
}

// isLoopbackBindAddress reports whether addr only accepts local connections.
func isLoopbackBindAddress(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	host = strings.Trim(host, "[]")
	switch host {
	case "localhost":
		return true
	case "", "0.0.0.0", "::":
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
