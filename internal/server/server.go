// Package server provides the HTTP server and routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jakub-mrow/AMS-backend/internal/config"
	"github.com/jakub-mrow/AMS-backend/internal/database"
	accountshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/accounts/handlers"
	assetshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/assets/handlers"
	historyhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/history/handlers"
	importerhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/importer/handlers"
	ledgerhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/ledger/handlers"
	positionshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/positions/handlers"
	valuationhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/valuation/handlers"
)

// Handlers collects the per-module HTTP handlers mounted under /api.
type Handlers struct {
	Accounts  *accountshandlers.Handler
	Ledger    *ledgerhandlers.Handler
	Positions *positionshandlers.Handler
	History   *historyhandlers.Handler
	Valuation *valuationhandlers.Handler
	Importer  *importerhandlers.Handler
	Assets    *assetshandlers.Handler
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Handlers  Handlers
	Databases []*database.DB
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	handlers       Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		handlers:       cfg.Handlers,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Databases...),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(s.cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		s.handlers.Accounts.RegisterRoutes(r)
		s.handlers.Ledger.RegisterRoutes(r)
		s.handlers.Positions.RegisterRoutes(r)
		s.handlers.History.RegisterRoutes(r)
		s.handlers.Valuation.RegisterRoutes(r)
		s.handlers.Importer.RegisterRoutes(r)
		s.handlers.Assets.RegisterRoutes(r)
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
