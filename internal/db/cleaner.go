package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PruneEvents removes journal rows written before cutoff and reports how many
// were deleted. Committed state is not touched.
func PruneEvents(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return rows, nil
}

// StartEventPruner runs PruneEvents every interval until ctx is done, keeping
// the last retention worth of events.
func StartEventPruner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := PruneEvents(ctx, db, now.Add(-retention))
				switch {
				case err != nil:
					log.Error("failed to prune events", zap.Error(err))
				case removed > 0:
					log.Info("pruned events",
						zap.Int64("removed", removed),
						zap.Duration("retention", retention))
				}
			}
		}
	}()
}
