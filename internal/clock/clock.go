// Package clock provides the logical time source consumed by the engine.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current logical time. Values never decrease.
type Clock interface {
	Now() uint64
}

// Ticks converts wall time into logical ticks of a fixed duration and
// guarantees the returned value never goes backwards, even if the host
// clock is adjusted.
type Ticks struct {
	tick time.Duration
	src  func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewTicks returns a Ticks clock. A non-positive tick falls back to one second.
func NewTicks(tick time.Duration) *Ticks {
	if tick <= 0 {
		tick = time.Second
	}
	return &Ticks{tick: tick, src: time.Now}
}

func (c *Ticks) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.src().UnixNano()
	if n < 0 {
		n = 0
	}
	v := uint64(n) / uint64(c.tick)
	if v < c.last {
		return c.last
	}
	c.last = v
	return v
}

// Manual is a settable clock for tests and replay tools.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual returns a Manual clock starting at start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d ticks.
func (m *Manual) Advance(d uint64) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t uint64) {
	m.mu.Lock()
	if t > m.now {
		m.now = t
	}
	m.mu.Unlock()
}
