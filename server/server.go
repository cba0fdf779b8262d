// Package server provides HTTP server management and lifecycle handling for
// the herbolaria API: middleware, routes and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/herbolaria-api/config"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/metrics"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	handler     interfaces.HTTPHandler
	config      *config.Config
	rateLimiter *RateLimiter
	stopCleanup context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:      router,
		handler:     handler,
		config:      cfg,
		rateLimiter: NewRateLimiter(),
		stopCleanup: cancel,
	}

	server.rateLimiter.StartCleanup(ctx, 30*time.Minute)
	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(BlockDirectAccessMiddleware) // Put BEFORE RealIPMiddleware to see original RemoteAddr
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(requestLogger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(metrics.Metrics)
}

func requestLogger() *slog.Logger {
	if logging.DefaultLoggingService == nil {
		return nil
	}
	return logging.DefaultLoggingService.Logger
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Route("/herbs", func(r chi.Router) {
		r.Get("/", h.ListHerbs)
		r.Get("/{id}", h.GetHerb)
		r.Get("/{id}/warnings", h.HerbWarnings)
	})

	s.router.Route("/formulas", func(r chi.Router) {
		r.Get("/", h.ListFormulas)
		r.Get("/{id}", h.GetFormula)
		r.Get("/{id}/composition", h.FormulaComposition)
		r.Get("/{id}/warnings", h.FormulaWarnings)
	})

	s.router.Route("/prescriptions", func(r chi.Router) {
		r.Post("/", h.CreatePrescription)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetPrescription)
			r.Delete("/", h.DeletePrescription)
			r.Post("/herbs", h.AddHerb)
			r.Post("/formulas", h.AddFormula)
			r.Put("/items/{index}", h.SetItemQuantity)
			r.Delete("/items/{index}", h.RemoveItem)
			r.Delete("/items", h.ClearItems)
			r.Put("/conditions", h.SetConditions)
			r.Post("/save", h.SavePrescription)
		})
	})

	s.router.Route("/records", func(r chi.Router) {
		r.Get("/", h.ListRecords)
		r.Get("/{id}", h.GetRecord)
		r.Post("/{id}/draft", h.ReopenRecord)
	})

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the server
func (s *Server) Start() error {
	// Start profiling server if in development mode
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.stopCleanup()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
