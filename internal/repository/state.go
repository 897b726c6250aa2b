// Package repository provides the PostgreSQL persistence behind the engine
// state store and its event journal.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

// ErrStaleSequence is returned when another writer already committed a
// sequence at or above the one being applied. It wraps state.ErrSeqConflict.
var ErrStaleSequence = fmt.Errorf("stale state sequence: %w", state.ErrSeqConflict)

// PostgresStateRepository persists committed state transactions.
type PostgresStateRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

var _ state.Backend = (*PostgresStateRepository)(nil)

// NewPostgresStateRepository creates a repository over db.
func NewPostgresStateRepository(db *sql.DB) *PostgresStateRepository {
	return &PostgresStateRepository{DB: db}
}

// Load returns every state entry and the last committed sequence.
func (r *PostgresStateRepository) Load(ctx context.Context) (map[string][]byte, uint64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key, value FROM state_entries`)
	if err != nil {
		return nil, 0, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		entries[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("load entries: %w", err)
	}

	var seq int64
	err = r.DB.QueryRowContext(ctx, `SELECT seq FROM state_meta WHERE id = 1`).Scan(&seq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("load seq: %w", err)
	}
	return entries, uint64(seq), nil
}

// Apply writes one committed transaction: entry upserts and deletes, the new
// sequence, and the emitted events, all in one database transaction.
func (r *PostgresStateRepository) Apply(ctx context.Context, seq uint64, changes []state.Change, events []models.Event) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var deleted []string
	for _, c := range changes {
		if c.Deleted {
			deleted = append(deleted, c.Key)
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state_entries (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, c.Key, c.Value)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", c.Key, err)
		}
	}
	if len(deleted) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM state_entries WHERE key = ANY($1)`, pq.Array(deleted)); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO state_meta (id, seq) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET seq = EXCLUDED.seq WHERE state_meta.seq < EXCLUDED.seq
	`, int64(seq))
	if err != nil {
		return fmt.Errorf("update seq: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update seq: %w", err)
	} else if n != 1 {
		return fmt.Errorf("seq %d: %w", seq, ErrStaleSequence)
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev.Attrs)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.Type, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, seq, ord, kind, principal, at, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ev.ID, int64(ev.Seq), ev.Index, ev.Type, string(ev.Principal), int64(ev.At), payload)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
