package client

import (
	"context"
	"time"

	"github.com/phessophissy/POSVault/internal/models"
)

// FollowPageSize is the page size Follow requests. A full page is followed
// by another request without waiting.
const FollowPageSize = 100

// Follow polls the event feed every interval and hands each new event to
// handle, oldest first. It returns the last seen sequence when ctx is done
// or a poll fails.
func (c *Client) Follow(
	ctx context.Context,
	principal models.Principal,
	afterSeq uint64,
	interval time.Duration,
	handle func(models.Event),
) (uint64, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		events, err := c.Events(ctx, principal, afterSeq, FollowPageSize)
		if err != nil {
			if ctx.Err() != nil {
				return afterSeq, nil
			}
			return afterSeq, err
		}
		for _, ev := range events {
			handle(ev)
			afterSeq = max(afterSeq, ev.Seq)
		}
		if len(events) >= FollowPageSize {
			if ctx.Err() != nil {
				return afterSeq, nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return afterSeq, nil
		case <-ticker.C:
		}
	}
}
