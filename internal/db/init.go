// Package db opens the PostgreSQL database backing the engine state and runs
// its maintenance jobs.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS state_entries (
    key TEXT PRIMARY KEY,
    value BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS state_meta (
    id SMALLINT PRIMARY KEY CHECK (id = 1),
    seq BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY,
    seq BIGINT NOT NULL,
    ord INTEGER NOT NULL DEFAULT 0,
    kind TEXT NOT NULL,
    principal TEXT NOT NULL,
    at BIGINT NOT NULL,
    payload JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE events ADD COLUMN IF NOT EXISTS ord INTEGER NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS events_seq_ord_idx ON events (seq, ord);
CREATE INDEX IF NOT EXISTS events_principal_idx ON events (principal, seq);
`

// Migrate creates the state and journal tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InitPostgres connects to dsn and migrates the schema. The connection is
// closed again if either step fails.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
