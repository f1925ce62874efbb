package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enxi-erp/reconcile-backend/internal/api/handlers"
	"github.com/enxi-erp/reconcile-backend/internal/api/middleware"
	"github.com/enxi-erp/reconcile-backend/internal/application/service"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	DefaultRules   matcher.Rules
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		DefaultRules:   matcher.DefaultRules(),
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	sessions   *service.Service
}

// NewServer creates a new API server.
func NewServer(cfg Config, repo storage.Repository, sessions *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		repo:     repo,
		sessions: sessions,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Reconciliation sessions
		sessionsHandler := handlers.NewSessionsHandler(s.sessions, s.config.DefaultRules)
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions", sessionsHandler.List)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/automatch", sessionsHandler.AutoMatch)
		r.Post("/sessions/{id}/matches", sessionsHandler.AddMatch)
		r.Delete("/sessions/{id}/matches", sessionsHandler.RemoveMatch)
		r.Post("/sessions/{id}/finalize", sessionsHandler.Finalize)
		r.Get("/sessions/{id}/transactions", sessionsHandler.Transactions)
		r.Get("/sessions/{id}/payments", sessionsHandler.Payments)

		// Finalized history
		reconciliationsHandler := handlers.NewReconciliationsHandler(s.repo)
		r.Get("/reconciliations", reconciliationsHandler.List)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
