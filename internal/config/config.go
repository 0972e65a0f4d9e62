// Package config reads the server and CLI configuration from the
// environment.
//
// ENVIRONMENT VARIABLES:
//
//	PORT               HTTP port (default 8080)
//	DB_DRIVER          sqlite | postgres | mysql (default sqlite)
//	DB_DSN             connection string for postgres and mysql
//	DB_PATH            SQLite file (default: $XDG_DATA_HOME/snippet-store/store.db)
//	DB_MAX_OPEN_CONNS  pool size for postgres and mysql (default 10)
//	LOG_LEVEL          debug | info | warn | error (default info)
//
// Twelve-factor style: no config file, so the same binary runs unchanged in
// a container, under systemd or from a shell.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"

	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/query"
)

const appName = "snippet-store"

type Config struct {
	Port     int
	DB       database.Config
	LogLevel slog.Level
}

// Load reads the environment. Every problem is reported at once rather than
// one per restart.
func Load() (Config, error) {
	cfg := Config{
		Port: 8080,
		DB: database.Config{
			Backend:      query.SQLite,
			MaxOpenConns: 10,
		},
		LogLevel: slog.LevelInfo,
	}
	var problems []string

	if s := os.Getenv("PORT"); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil || port < 1 || port > 65535 {
			problems = append(problems, fmt.Sprintf("PORT: %q is not a valid port", s))
		} else {
			cfg.Port = port
		}
	}

	if s := os.Getenv("DB_DRIVER"); s != "" {
		switch b := query.Backend(strings.ToLower(s)); b {
		case query.SQLite, query.Postgres, query.MySQL:
			cfg.DB.Backend = b
		default:
			problems = append(problems, fmt.Sprintf("DB_DRIVER: unknown driver %q", s))
		}
	}

	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Backend != query.SQLite && cfg.DB.DSN == "" {
		problems = append(problems, fmt.Sprintf("DB_DSN: required for %s", cfg.DB.Backend))
	}

	cfg.DB.Path = os.Getenv("DB_PATH")
	if cfg.DB.Path == "" && cfg.DB.Backend == query.SQLite {
		cfg.DB.Path = DefaultDBPath()
	}

	if s := os.Getenv("DB_MAX_OPEN_CONNS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			problems = append(problems, fmt.Sprintf("DB_MAX_OPEN_CONNS: %q is not a positive integer", s))
		} else {
			cfg.DB.MaxOpenConns = n
		}
	}

	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(s)); err != nil {
			problems = append(problems, fmt.Sprintf("LOG_LEVEL: unknown level %q", s))
		}
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// DefaultDBPath is the SQLite file under the XDG data directory, falling
// back to the home directory and finally the working directory.
func DefaultDBPath() string {
	xdg.Reload()
	dataHome := xdg.DataHome
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("data", "store.db")
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appName, "store.db")
}

// Logger builds the process logger at the configured level.
func (c Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel}))
}
