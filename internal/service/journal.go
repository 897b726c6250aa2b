package service

import (
	"context"
	"sync"

	"github.com/phessophissy/POSVault/internal/models"
)

// EventSource lists committed events.
type EventSource interface {
	ListEvents(ctx context.Context, principal models.Principal, afterSeq uint64, limit int) ([]models.Event, error)
}

// MemoryJournal keeps the most recent committed events in memory. It serves
// the event feed when no database is configured.
type MemoryJournal struct {
	mu       sync.RWMutex
	events   []models.Event
	capacity int
}

// NewMemoryJournal keeps at most capacity events.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryJournal{capacity: capacity}
}

// Commit appends the events of a committed transaction.
func (j *MemoryJournal) Commit(_ uint64, events []models.Event) {
	if len(events) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, events...)
	if over := len(j.events) - j.capacity; over > 0 {
		j.events = append([]models.Event(nil), j.events[over:]...)
	}
}

// ListEvents returns events after afterSeq, oldest first. An empty principal
// matches every caller. A page holds whole commits: it ends with the commit
// that reaches limit events, so afterSeq of its last event is a safe cursor.
// limit <= 0 means no limit.
func (j *MemoryJournal) ListEvents(ctx context.Context, principal models.Principal, afterSeq uint64, limit int) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []models.Event
	for _, ev := range j.events {
		if ev.Seq <= afterSeq || (principal != "" && ev.Principal != principal) {
			continue
		}
		if limit > 0 && len(out) >= limit && ev.Seq != out[len(out)-1].Seq {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}
