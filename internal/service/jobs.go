package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartReconciler periodically clears proposer pointers whose proposals
// expired without execution, and checks the proposer index.
func StartReconciler(
	ctx context.Context,
	e *Engine,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleared, err := e.Reconcile(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error("failed to reconcile proposals", zap.Error(err))
					continue
				}
				if cleared > 0 {
					log.Info("released expired proposals", zap.Int("cleared", cleared))
				}
			}
		}
	}()
}
