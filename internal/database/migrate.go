package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sakif/snippet-store/db/migrations"
	"github.com/sakif/snippet-store/internal/query"
)

// MIGRATIONS:
// The schema lives in db/migrations/<backend>/NNNNNN_name.{up,down}.sql and is
// compiled into the binary. golang-migrate records the applied version in a
// schema_migrations table, so running Migrate on an up-to-date database is a
// no-op.

// Migrate applies every pending up migration.
func (db *DB) Migrate() error {
	return db.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("database: applying migrations: %w", err)
		}
		version, dirty, err := m.Version()
		if err == nil {
			db.logger.Info("schema up to date",
				slog.Uint64("version", uint64(version)),
				slog.Bool("dirty", dirty))
		}
		return nil
	})
}

// MigrateDown rolls back the given number of migrations.
func (db *DB) MigrateDown(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("database: steps must be positive")
	}
	return db.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("database: rolling back migrations: %w", err)
		}
		return nil
	})
}

// SchemaVersion reports the applied migration version. A database that has
// never been migrated reports version 0.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	err = db.withMigrator(func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty, err = 0, false, nil
		}
		return err
	})
	return version, dirty, err
}

// withMigrator builds a migrator for the active backend.
//
// SQLite migrates through the pool itself: with one connection and possibly
// an in-memory database, a second handle would either wait forever or see a
// different database. Closing that migrator would close the pool, so only its
// source is closed. Server backends get a dedicated handle that is closed
// afterwards, because their migrate drivers pin a connection for their whole
// lifetime.
func (db *DB) withMigrator(fn func(m *migrate.Migrate) error) error {
	backend := db.Backend()
	src, err := iofs.New(migrations.Files, string(backend))
	if err != nil {
		return fmt.Errorf("database: loading embedded migrations: %w", err)
	}

	var m *migrate.Migrate
	switch backend {
	case query.SQLite:
		driver, err := migratesqlite.WithInstance(db.DB.DB, &migratesqlite.Config{})
		if err != nil {
			src.Close()
			return fmt.Errorf("database: initialising migrate driver: %w", err)
		}
		if m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver); err != nil {
			src.Close()
			return fmt.Errorf("database: creating migrator: %w", err)
		}
		defer src.Close()
		return fn(m)

	case query.Postgres:
		raw, err := sql.Open("pgx", db.dsn)
		if err != nil {
			src.Close()
			return fmt.Errorf("database: opening migrate connection: %w", err)
		}
		driver, err := migratepgx.WithInstance(raw, &migratepgx.Config{})
		if err != nil {
			src.Close()
			raw.Close()
			return fmt.Errorf("database: initialising migrate driver: %w", err)
		}
		if m, err = migrate.NewWithInstance("iofs", src, "pgx", driver); err != nil {
			src.Close()
			driver.Close()
			return fmt.Errorf("database: creating migrator: %w", err)
		}

	case query.MySQL:
		dsn, err := mysqlDSN(db.cfg.DSN, true)
		if err != nil {
			src.Close()
			return err
		}
		raw, err := sql.Open("mysql", dsn)
		if err != nil {
			src.Close()
			return fmt.Errorf("database: opening migrate connection: %w", err)
		}
		driver, err := migratemysql.WithInstance(raw, &migratemysql.Config{})
		if err != nil {
			src.Close()
			raw.Close()
			return fmt.Errorf("database: initialising migrate driver: %w", err)
		}
		if m, err = migrate.NewWithInstance("iofs", src, "mysql", driver); err != nil {
			src.Close()
			driver.Close()
			return fmt.Errorf("database: creating migrator: %w", err)
		}

	default:
		src.Close()
		return fmt.Errorf("database: unsupported backend %q", backend)
	}

	runErr := fn(m)
	srcErr, dbErr := m.Close()
	return errors.Join(runErr, srcErr, dbErr)
}
