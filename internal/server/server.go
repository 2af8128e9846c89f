// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//   config → logger → Store (sqlite or mongo) → street cache → Server
//   Server.New() creates: services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/billing-tracker/internal/auth"
	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/config"
	"github.com/sakif/billing-tracker/internal/handler"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/middleware"
	"github.com/sakif/billing-tracker/internal/repository"
	"github.com/sakif/billing-tracker/internal/service"
	"github.com/sakif/billing-tracker/internal/store"
)

// Config holds everything the server is built from. Store is required;
// Cache and Metrics may be nil.
type Config struct {
	App     *config.Config
	Store   repository.Store
	Cache   cache.StreetCache
	Metrics *metrics.Metrics
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. When the server shuts down, Start closes it to
// flush pending writes and release connections.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	streets cache.StreetCache
	metrics *metrics.Metrics
}

// New wires services and handlers onto a fresh router.
//
// Each layer only receives what it needs:
// - Services get repository interfaces (not the concrete backend)
// - Handlers get services (not repositories)
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.App == nil || cfg.Store == nil {
		return nil, errors.New("server: App config and Store are required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg.App,
		logger:  logger,
		store:   cfg.Store,
		streets: cfg.Cache,
		metrics: cfg.Metrics,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the fully wired router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// endpoints is the API index served at GET /.
var endpoints = []handler.Endpoint{
	{Method: http.MethodGet, Path: "/api/health"},
	{Method: http.MethodPost, Path: "/api/auth/register"},
	{Method: http.MethodPost, Path: "/api/auth/login"},
	{Method: http.MethodGet, Path: "/api/auth/me", Auth: true},
	{Method: http.MethodGet, Path: "/api/customers/streets", Auth: true},
	{Method: http.MethodGet, Path: "/api/customers/street/{streetName}", Auth: true},
	{Method: http.MethodGet, Path: "/api/customers/all", Auth: true},
	{Method: http.MethodPost, Path: "/api/customers", Auth: true},
	{Method: http.MethodPut, Path: "/api/customers/{id}", Auth: true},
	{Method: http.MethodDelete, Path: "/api/customers/{id}", Auth: true},
	{Method: http.MethodPatch, Path: "/api/customers/{id}/mark-paid", Auth: true},
	{Method: http.MethodPost, Path: "/api/customers/reset-month", Auth: true},
	{Method: http.MethodPost, Path: "/api/customers/import", Auth: true},
	{Method: http.MethodGet, Path: "/api/customers/export", Auth: true},
	{Method: http.MethodGet, Path: "/api/reports/monthly", Auth: true},
	{Method: http.MethodGet, Path: "/api/reports/history", Auth: true},
	{Method: http.MethodGet, Path: "/metrics"},
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger, Metrics: see the final status, including the 500 of a recovered panic
// 4. Recoverer: catches panics and returns 500 instead of crashing
// 5. CORS: answers browser preflight requests before any auth check
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.JWTTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		// The export download's filename is in this header.
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	// === Services and handlers ===
	authService := service.NewAuthService(s.store, tokens, passwords, s.logger)
	customerService := service.NewCustomerService(s.store, s.streets, s.metrics, s.logger)
	reportService := service.NewReportService(s.store, s.store, s.metrics, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	customerHandler := handler.NewCustomerHandler(customerService, s.config.MaxUploadBytes, s.logger)
	reportHandler := handler.NewReportHandler(reportService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	indexHandler := handler.NewIndexHandler(store.Describe(s.config), endpoints)

	requireAuth := auth.RequireAuth(tokens)

	// === Public routes ===
	s.router.Get("/", indexHandler.HandleIndex)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
		})

		// === Protected routes ===
		// Everything below needs "Authorization: Bearer <token>"; the
		// middleware puts the caller's identity in the request context.
		r.Route("/customers", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/streets", customerHandler.HandleStreets)
			r.Get("/street/{streetName}", customerHandler.HandleByStreet)
			r.Get("/all", customerHandler.HandleAll)
			r.Get("/export", customerHandler.HandleExport)
			r.Post("/", customerHandler.HandleAdd)
			r.Post("/import", customerHandler.HandleImport)
			r.Post("/reset-month", customerHandler.HandleResetMonth)
			r.Put("/{id}", customerHandler.HandleUpdate)
			r.Delete("/{id}", customerHandler.HandleDelete)
			r.Patch("/{id}/mark-paid", customerHandler.HandleMarkPaid)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/monthly", reportHandler.HandleMonthly)
			r.Get("/history", reportHandler.HandleHistory)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes sqlite, disconnects mongo)
//
// The `defer s.store.Close()` ensures step 3 happens on every return path.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", store.Describe(s.config)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
