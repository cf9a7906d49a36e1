// Package server exposes the run control surface over HTTP: run lifecycle,
// results, plots, telemetry, diagnostics, report and export endpoints, plus
// a websocket telemetry stream.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"indicator-lab/internal/observability"
	"indicator-lab/internal/orchestrator"
)

// Options configures a Server.
type Options struct {
	Addr         string
	Orchestrator *orchestrator.Orchestrator
	Logger       zerolog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP control surface in front of the orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	router *mux.Router
	server *http.Server
	log    zerolog.Logger
	now    func() time.Time
}

// New builds the server and wires all routes.
func New(opts Options) *Server {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		orch:   opts.Orchestrator,
		router: mux.NewRouter(),
		log:    opts.Logger,
		now:    time.Now,
	}
	s.routes()

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleCreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/cancel", s.handleCancelRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/plots/{plotId}", s.handlePlot).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/telemetry", s.handleTelemetry).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/scripts", s.handleScripts).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/export", s.handleExport).Methods(http.MethodGet)

	s.router.HandleFunc("/ws/runs/{id}/telemetry", s.handleTelemetryStream).Methods(http.MethodGet)

	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

// Handler exposes the router, used by tests and by cmd/lab.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
