// Package main is the entry point for the snippet-store API server.
//
// main stays minimal:
//  1. Read configuration from the environment
//  2. Create the logger and open the database
//  3. Apply pending migrations
//  4. Start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/snippet-store/internal/config"
	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Open(ctx, cfg.DB, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		logger.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(server.Config{Port: cfg.Port, RecordAccess: true}, db, logger)

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	// and closes the database on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
