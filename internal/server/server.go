// Package server provides the HTTP server and routing for treasury.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/history"
	"github.com/aristath/treasury/internal/metrics"
	"github.com/aristath/treasury/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	Store     history.Store
	Runs      *history.RunRepository
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Ingest    IngestTrigger // Triggered by POST /api/runs; nil disables the endpoint
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	cache  *cache.Cache
	stream *EventsStreamHandler
}

// IngestTrigger is the ingest job as seen by the HTTP API. The job guards
// itself against overlapping runs; Running lets the API answer 409 early.
type IngestTrigger interface {
	scheduler.Job
	Running() bool
}

// Cache keys
const totalsCacheKey = "period_totals"

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
		cache:  cache.New(10*time.Minute, 30*time.Minute),
	}

	s.stream = NewEventsStreamHandler(s.log)
	if cfg.Events != nil {
		cfg.Events.Subscribe(s.stream.Publish)
		cfg.Events.Subscribe(func(e events.EventWithData) {
			// Aggregates only change when a period lands
			if e.Type == events.PeriodCommitted {
				s.cache.Delete(totalsCacheKey)
			}
		})
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS for read-only dashboards hosted elsewhere
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Streaming route is registered outside the timeout middleware
		r.Get("/events/stream", s.stream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/events", s.handleEvents)

			r.Get("/runs", s.handleRuns)
			r.Post("/runs", s.handleTriggerRun)
			r.Get("/runs/{runID}/section", s.handleRunSection)

			r.Get("/periods", s.handlePeriods)
			r.Get("/periods/{period}", s.handlePeriod)

			r.Get("/entities/{match}/history", s.handleEntityHistory)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.stream.Close()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
