// Package database opens the configured backend and keeps its schema current.
//
// WHY THREE BACKENDS?
// SQLite is an embedded database: it lives inside the binary as a single file,
// perfect for development, tests and single-server deployments. Postgres and
// MySQL are the server-class options for everything else. The rest of the
// code never branches on which one is active: it gets a *sqlx.DB plus a
// query.Dialect, and the Dialect's Normalizer owns every type difference.
//
// DRIVER REGISTRATION:
// The blank imports below register "sqlite" (modernc.org/sqlite, pure Go, no
// CGo), "pgx" (jackc/pgx through database/sql) and "mysql" with database/sql
// at init time. sqlx.Open(driverName, dsn) then knows how to talk to each.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sakif/snippet-store/internal/query"
)

// Config selects and tunes the backend.
type Config struct {
	Backend query.Backend
	// DSN is the connection string for postgres and mysql.
	DSN string
	// Path is the SQLite file; ":memory:" gives a private in-memory database.
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DB is an open backend: the connection pool and the dialect that matches it.
type DB struct {
	*sqlx.DB
	Dialect *query.Dialect
	cfg     Config
	dsn     string
	logger  *slog.Logger
}

// Open connects to the configured backend and verifies the connection.
//
// CONNECTION POOL:
// sqlx.Open() does NOT actually open a connection; it just creates a pool
// manager. We ping to force an immediate connection so a bad DSN or path
// fails here instead of on the first request.
//
// SQLITE AND ONE CONNECTION:
// SQLite allows a single writer. The pool is capped at one connection so
// writers queue in Go instead of failing with SQLITE_BUSY, and an in-memory
// database is never dropped because its last connection closed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	dialect, err := query.NewDialect(cfg.Backend)
	if err != nil {
		return nil, err
	}

	dsn, err := cfg.dataSource()
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("database: opening %s: %w", cfg.Backend, err)
	}

	if cfg.Backend == query.SQLite {
		conn.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database: pinging %s: %w", cfg.Backend, err)
	}

	logger.Info("database connected", slog.String("backend", string(cfg.Backend)))
	return &DB{DB: conn, Dialect: dialect, cfg: cfg, dsn: dsn, logger: logger}, nil
}

// Backend reports which engine db talks to.
func (db *DB) Backend() query.Backend { return db.Dialect.Backend() }

// Executor returns a query executor bound to db.
func (db *DB) Executor() *query.Executor {
	return query.NewExecutor(db.DB, db.Dialect, db.logger)
}

// Close closes the connection pool.
//
// ALWAYS DEFER CLOSE:
// Wherever you call Open(), immediately defer Close():
//
//	db, err := database.Open(ctx, cfg, logger)
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.DB.Close()
}

func (cfg Config) dataSource() (string, error) {
	switch cfg.Backend {
	case query.SQLite:
		return sqliteDSN(cfg.Path)
	case query.MySQL:
		return mysqlDSN(cfg.DSN, false)
	case query.Postgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("database: postgres needs a DSN")
		}
		return cfg.DSN, nil
	}
	return "", fmt.Errorf("database: unsupported backend %q", cfg.Backend)
}

// sqliteDSN builds a modernc.org/sqlite DSN. Pragmas go in the DSN rather
// than through Exec so they apply to every connection the pool opens.
//
// Foreign keys are OFF by default in SQLite (for backwards compatibility);
// we turn them on for referential integrity. WAL lets readers proceed while a
// write is happening, but only applies to files.
func sqliteDSN(path string) (string, error) {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")

	if path == "" || path == ":memory:" {
		// A unique name keeps separate Opens in one process apart.
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:" + xid.New().String() + "?" + params.Encode(), nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("database: resolving %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", fmt.Errorf("database: creating directory for %s: %w", abs, err)
	}
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + filepath.ToSlash(abs) + "?" + params.Encode(), nil
}

// mysqlDSN forces the options the Normalizer relies on: DATETIME scanned as
// time.Time in UTC. Migrations also need multi-statement execution.
func mysqlDSN(dsn string, multiStatements bool) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("database: mysql needs a DSN")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database: parsing mysql DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.MultiStatements = multiStatements
	return mc.FormatDSN(), nil
}
