// Package api provides the HTTP control surface for diagnostic reports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
	"github.com/hugo-lorenzo-mato/procreport/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
	"github.com/hugo-lorenzo-mato/procreport/internal/events"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// Runner runs fn on the engine goroutine and waits for it. *engine.Loop
// implements it.
type Runner interface {
	Call(ctx context.Context, fn func() error) error
	State() engine.VMState
}

// Reporter is the report surface the server drives. *report.Controller
// implements it.
type Reporter interface {
	Dump(filename string) (report.Result, error)
	Options() report.Options
	Set(option, value string) error
}

// Catalog lists written reports. *catalog.Store implements it.
type Catalog interface {
	List(ctx context.Context, limit int) ([]catalog.Entry, error)
	Get(ctx context.Context, reportID string) (catalog.Entry, error)
	Content(ctx context.Context, reportID string) (catalog.Entry, []byte, error)
}

// Server serves report triggering, configuration and metrics over HTTP.
type Server struct {
	router   chi.Router
	runner   Runner
	reporter Reporter
	catalog  Catalog
	monitor  *diagnostics.ResourceMonitor
	gatherer prometheus.Gatherer
	events   *events.Bus
	origins  []string
	timeout  time.Duration
	read     time.Duration
	write    time.Duration
	logger   *slog.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCatalog enables the report listing endpoints.
func WithCatalog(c Catalog) ServerOption {
	return func(s *Server) {
		s.catalog = c
	}
}

// WithMonitor adds resource warnings to /health.
func WithMonitor(m *diagnostics.ResourceMonitor) ServerOption {
	return func(s *Server) {
		s.monitor = m
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithCORSOrigins sets the allowed cross-origin callers. None allows all.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRequestTimeout bounds each request, including the wait for the engine.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithHTTPTimeouts sets the read and write timeouts of the listening server.
func WithHTTPTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.read, s.write = read, write
	}
}

// NewServer creates a new API server.
func NewServer(runner Runner, reporter Reporter, opts ...ServerOption) *Server {
	s := &Server{
		runner:   runner,
		reporter: reporter,
		timeout:  60 * time.Second,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-Match", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/api/v1/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealth)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/reports", func(r chi.Router) {
				r.Post("/", s.handleTriggerReport)
				r.Get("/", s.handleListReports)
				r.Get("/{reportID}", s.handleGetReport)
				r.Get("/{reportID}/content", s.handleGetReportContent)
			})
			r.Route("/config", func(r chi.Router) {
				r.Get("/", s.handleGetConfig)
				r.Put("/{option}", s.handleSetOption)
			})
		})
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type healthResponse struct {
	Status   string                        `json:"status"`
	Time     string                        `json:"time"`
	Engine   string                        `json:"engine"`
	Warnings []diagnostics.HealthWarning   `json:"warnings,omitempty"`
	Latest   *diagnostics.ResourceSnapshot `json:"resources,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Engine: s.runner.State().String(),
	}
	if s.monitor != nil {
		resp.Warnings = s.monitor.CheckHealth()
		if snap, ok := s.monitor.Latest(); ok {
			resp.Latest = &snap
		}
		for _, warn := range resp.Warnings {
			if warn.Level == "critical" {
				resp.Status = "degraded"
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.read,
		WriteTimeout:      s.write,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", addr, err)
	}
	return nil
}
