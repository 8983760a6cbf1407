package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// migrations are applied in order at first open; the schema version recorded
// in schema_version is the index of the last applied entry plus one.
var migrations = []string{
	// v1: reminders table with the two indexed fields (created_at, active).
	`CREATE TABLE IF NOT EXISTS reminders (
	    id             BIGSERIAL PRIMARY KEY,
	    message        TEXT NOT NULL,
	    persona        TEXT NOT NULL,
	    kind           TEXT NOT NULL,
	    active         BOOLEAN NOT NULL DEFAULT TRUE,
	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	    fire_at        TIMESTAMPTZ,
	    snooze_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	    fire_hour      SMALLINT,
	    fire_minute    SMALLINT,
	    weekdays       INTEGER[]
	);
	CREATE INDEX IF NOT EXISTS reminders_created_at_idx ON reminders (created_at);
	CREATE INDEX IF NOT EXISTS reminders_active_idx ON reminders (active) WHERE active;`,
}

// Migrate brings the schema up to the current version. Each migration is
// applied at most once, inside its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
	    version    INTEGER NOT NULL,
	    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if current.Valid && int64(version) <= current.Int64 {
			continue
		}

		txn, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}
		if _, err := txn.ExecContext(ctx, stmt); err != nil {
			txn.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := txn.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, version); err != nil {
			txn.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}
