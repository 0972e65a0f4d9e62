// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides which URL patterns map to
// which handler, what middleware runs, and how the server stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go:       config.Load → database.Open → server.New
//	server.New:    sqlstore → services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/routes) instead of being scattered across the codebase.
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

	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/handler"
	"github.com/sakif/snippet-store/internal/middleware"
	"github.com/sakif/snippet-store/internal/repository/sqlstore"
	"github.com/sakif/snippet-store/internal/service"
)

type Config struct {
	Port int
	// RecordAccess turns on the access-log middleware.
	RecordAccess bool
}

// Server owns the router and the database it serves from. The database is
// opened by the caller and closed by Start on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *database.DB
}

// New wires repositories, services and handlers on top of db.
func New(cfg Config, db *database.DB, logger *slog.Logger, opts ...sqlstore.Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.routes(sqlstore.New(db, logger, opts...))
	return s
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

// routes configures middleware and handlers.
//
// ROUTE STRUCTURE:
//
//	/api/reports           moderation queue, stats, decisions
//	/api/conversations     the caller's conversations and their messages
//	/api/messages          send, delete, unread count, stats
//	/api/drafts            the caller's drafts
//	/api/notifications     inbox and delivery settings
//	/api/access-logs       request log (list, stats)
//	/healthz               liveness plus schema version
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger and the access log see the ID; RealIP
// rewrites RemoteAddr before it is recorded; Recoverer sits inside the
// logger so a panic is still logged as a 500.
func (s *Server) routes(store *sqlstore.Store) {
	repos := store.Repositories()

	notifications := service.NewNotificationService(repos.Notifications, repos.NotificationSettings, s.logger)
	moderation := service.NewModerationService(repos.Reports, notifications, s.logger)
	messaging := service.NewMessagingService(repos.Conversations, repos.Messages, repos.Drafts, notifications, s.logger)
	accessLogs := service.NewAccessLogService(repos.AccessLogs, s.logger)

	var recorder middleware.Recorder
	if s.config.RecordAccess {
		recorder = accessLogs
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, recorder))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	reports := handler.NewReportHandler(moderation, s.logger)
	messages := handler.NewMessageHandler(messaging, s.logger)
	inbox := handler.NewNotificationHandler(notifications, s.logger)
	logs := handler.NewAccessLogHandler(accessLogs, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/reports", reports.Routes)
		r.Route("/conversations", messages.ConversationRoutes)
		r.Route("/messages", messages.MessageRoutes)
		r.Route("/drafts", messages.DraftRoutes)
		r.Route("/notifications", inbox.Routes)
		r.Route("/access-logs", logs.Routes)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		status, code = "database unreachable", http.StatusServiceUnavailable
	}
	version, dirty, err := s.db.SchemaVersion()
	if err != nil || dirty {
		status, code = "schema not ready", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"backend":%q,"schemaVersion":%d}`+"\n", status, s.db.Backend(), version)
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database pool (flushes the SQLite WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("backend", string(s.db.Backend())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
