// Package server hosts the HTTP/WS surface: the C8 query-surface REST
// routes, the bucket-stream WebSocket push, and the health endpoint.
// Router setup is grounded on the teacher's setupMiddleware/setupRoutes
// shape (chi + go-chi/cors + structured request logging).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/broadcast"
	"github.com/foaggregator/fo-aggregator/internal/cache"
	"github.com/foaggregator/fo-aggregator/internal/healthmetrics"
	"github.com/foaggregator/fo-aggregator/internal/query"
)

// Config configures the HTTP server.
type Config struct {
	Port    int
	DevMode bool
}

// Server is the HTTP/WS surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger

	query   *query.Surface
	hub     *broadcast.Hub
	cache   *cache.Cache
	health  *healthmetrics.Registry
	cfg     Config
}

// New builds the server and wires its routes.
func New(cfg Config, q *query.Surface, hub *broadcast.Hub, ch *cache.Cache, health *healthmetrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    log.With().Str("component", "server").Logger(),
		query:  q,
		hub:    hub,
		cache:  ch,
		health: health,
		cfg:    cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/strike-distribution", s.handleStrikeDistribution)
		r.Get("/moneyness-series", s.handleMoneynessSeries)
		r.Get("/strike-history", s.handleStrikeHistory)
	})

	s.router.Get("/bucket-stream", s.handleBucketStream)
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

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
			Msg("http request")
	})
}
