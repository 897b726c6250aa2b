package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phessophissy/POSVault/internal/models"
)

// PostgresEventRepository reads the event journal.
type PostgresEventRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresEventRepository creates a journal reader over db.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{DB: db}
}

// ListEvents returns events committed after afterSeq in emission order. An
// empty principal matches every caller. A page holds whole commits only: it
// stops at the commit reaching limit events, so it may run over limit and
// afterSeq of the last event is always a safe cursor. limit <= 0 means no
// limit.
func (r *PostgresEventRepository) ListEvents(ctx context.Context, principal models.Principal, afterSeq uint64, limit int) ([]models.Event, error) {
	var pageSize any
	if limit > 0 {
		pageSize = limit
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, seq, ord, kind, principal, at, payload FROM events
		WHERE seq > $1 AND ($2 = '' OR principal = $2)
		  AND seq <= (
			SELECT COALESCE(MAX(seq), 0) FROM (
				SELECT seq FROM events
				WHERE seq > $1 AND ($2 = '' OR principal = $2)
				ORDER BY seq, ord
				LIMIT $3
			) page
		  )
		ORDER BY seq, ord
	`, int64(afterSeq), string(principal), pageSize)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			ev      models.Event
			seq, at int64
			payload []byte
			p       string
		)
		if err := rows.Scan(&ev.ID, &seq, &ev.Index, &ev.Type, &p, &at, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ev.Seq, ev.At, ev.Principal = uint64(seq), uint64(at), models.Principal(p)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Attrs); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	return events, nil
}
