// Package state holds the engine's key/value state and runs every public
// operation as one atomic, serialized transaction.
//
// Writes made inside Update land in a per-transaction overlay. If the
// callback fails, the overlay is dropped. If it succeeds, the overlay is
// handed to the Backend (when configured) and only then applied in memory,
// so a persistence failure also leaves the state untouched.
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/phessophissy/POSVault/internal/models"
)

// DefaultPersistTimeout bounds one Backend.Apply or the reload after it.
const DefaultPersistTimeout = 30 * time.Second

var (
	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("state: read-only transaction")
	// ErrSeqConflict is wrapped by backends that refuse a sequence because
	// it is already taken. Such a failure is never ambiguous.
	ErrSeqConflict = errors.New("state: sequence already committed")
)

// Change is one committed key mutation.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Backend persists committed transactions.
type Backend interface {
	// Load returns every stored entry and the last committed sequence.
	Load(ctx context.Context) (map[string][]byte, uint64, error)
	// Apply durably records one committed transaction.
	Apply(ctx context.Context, seq uint64, changes []Change, events []models.Event) error
}

// CommitHook observes committed transactions. Hooks run after the store lock
// is released and must not block for long.
type CommitHook func(seq uint64, events []models.Event)

// Store is the single writer of engine state.
type Store struct {
	mu      sync.RWMutex
	data    map[string][]byte
	index   *btree.BTreeG[string]
	seq     uint64
	backend Backend

	// PersistTimeout bounds backend calls made by Update.
	PersistTimeout time.Duration

	hookMu sync.RWMutex
	hooks  []CommitHook
}

func newIndex() *btree.BTreeG[string] {
	return btree.NewOrderedG[string](32)
}

// New creates an empty store. backend may be nil for a purely in-memory store.
func New(backend Backend) *Store {
	return &Store{
		data:           make(map[string][]byte),
		index:          newIndex(),
		backend:        backend,
		PersistTimeout: DefaultPersistTimeout,
	}
}

// Load replaces the in-memory state with the backend's content.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

// reload must be called with mu held.
func (s *Store) reload(ctx context.Context) error {
	entries, seq, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if entries == nil {
		entries = make(map[string][]byte)
	}
	index := newIndex()
	for k := range entries {
		index.ReplaceOrInsert(k)
	}
	s.data, s.index, s.seq = entries, index, seq
	return nil
}

// Seq returns the last committed sequence number.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// OnCommit registers a hook called after every successful Update.
func (s *Store) OnCommit(h CommitHook) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, h)
	s.hookMu.Unlock()
}

// Update runs fn as one atomic transaction at logical time now. A
// transaction that writes nothing and emits nothing is not committed.
//
// Persistence is not cancelled with ctx: once fn has succeeded the backend
// call runs to completion or PersistTimeout. If it fails for a reason other
// than ErrSeqConflict the outcome is unknown, so the store reloads from the
// backend and reports success when the transaction turns out to be there.
func (s *Store) Update(ctx context.Context, now uint64, fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{
		store:  s,
		now:    now,
		seq:    s.seq + 1,
		writes: make(map[string][]byte),
	}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}

	changes := tx.changes()
	if len(changes) == 0 && len(tx.events) == 0 {
		// nothing to commit; the sequence only counts real commits
		s.mu.Unlock()
		return nil
	}
	if s.backend != nil {
		if err := s.persist(ctx, tx.seq, changes, tx.events); err != nil {
			s.mu.Unlock()
			return err
		}
	} else {
		s.apply(changes)
	}
	s.seq = tx.seq
	events := tx.events
	s.mu.Unlock()

	s.hookMu.RLock()
	hooks := append([]CommitHook(nil), s.hooks...)
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(tx.seq, events)
	}
	return nil
}

// persist writes one transaction through the backend and applies it in
// memory. It must be called with mu held. A nil return means seq committed.
func (s *Store) persist(ctx context.Context, seq uint64, changes []Change, events []models.Event) error {
	timeout := s.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	detached := context.WithoutCancel(ctx)

	applyCtx, cancel := context.WithTimeout(detached, timeout)
	applyErr := s.backend.Apply(applyCtx, seq, changes, events)
	cancel()
	if applyErr == nil {
		s.apply(changes)
		return nil
	}

	loadCtx, cancel := context.WithTimeout(detached, timeout)
	defer cancel()
	if err := s.reload(loadCtx); err != nil {
		return fmt.Errorf("persist seq %d: %w (reload: %v)", seq, applyErr, err)
	}
	if !errors.Is(applyErr, ErrSeqConflict) && s.seq == seq {
		return nil
	}
	return fmt.Errorf("persist seq %d: %w", seq, applyErr)
}

func (s *Store) apply(changes []Change) {
	for _, c := range changes {
		if c.Deleted {
			delete(s.data, c.Key)
			s.index.Delete(c.Key)
			continue
		}
		if _, ok := s.data[c.Key]; !ok {
			s.index.ReplaceOrInsert(c.Key)
		}
		s.data[c.Key] = c.Value
	}
}

// View runs fn against a consistent read-only snapshot.
func (s *Store) View(now uint64, fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := &Tx{store: s, now: now, seq: s.seq, readOnly: true}
	return fn(tx)
}

// Tx is a transaction handle. It is only valid inside the Update or View
// callback that received it.
type Tx struct {
	store    *Store
	now      uint64
	seq      uint64
	readOnly bool

	// writes maps key to new value; a nil value marks a deletion.
	writes map[string][]byte
	events []models.Event
}

// Now is the logical time fixed for this operation.
func (tx *Tx) Now() uint64 { return tx.now }

// Seq is the sequence this transaction commits as. In a View it is the last
// committed sequence.
func (tx *Tx) Seq() uint64 { return tx.seq }

// Get returns the value stored under key.
func (tx *Tx) Get(key string) ([]byte, bool) {
	if v, ok := tx.writes[key]; ok {
		if v == nil {
			return nil, false
		}
		return v, true
	}
	v, ok := tx.store.data[key]
	return v, ok
}

// Put stores value under key. value must not be nil.
func (tx *Tx) Put(key string, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	tx.writes[key] = value
	return nil
}

// Delete removes key.
func (tx *Tx) Delete(key string) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.writes[key] = nil
	return nil
}

// Keys returns the sorted keys that start with prefix, including
// uncommitted writes of this transaction.
func (tx *Tx) Keys(prefix string) []string {
	return tx.Range(prefix, prefixEnd(prefix))
}

// Range returns the sorted live keys in [from, to). An empty to means no
// upper bound.
func (tx *Tx) Range(from, to string) []string {
	var keys []string
	tx.ascend(from, to, func(k string) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// First returns the smallest live key starting with prefix.
func (tx *Tx) First(prefix string) (string, bool) {
	var first string
	found := false
	tx.ascend(prefix, prefixEnd(prefix), func(k string) bool {
		first, found = k, true
		return false
	})
	return first, found
}

// Floor returns the largest live key k with prefix <= k <= pivot that
// starts with prefix.
func (tx *Tx) Floor(prefix, pivot string) (string, bool) {
	if pivot < prefix {
		return "", false
	}
	var best string
	found := false
	tx.store.index.DescendLessOrEqual(pivot, func(k string) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		if v, ok := tx.writes[k]; ok && v == nil {
			return true
		}
		best, found = k, true
		return false
	})
	for k, v := range tx.writes {
		if v == nil || k > pivot || !strings.HasPrefix(k, prefix) {
			continue
		}
		if !found || k > best {
			best, found = k, true
		}
	}
	return best, found
}

// ascend visits live keys in [from, to) in order, merging committed keys
// with this transaction's overlay, until visit returns false.
func (tx *Tx) ascend(from, to string, visit func(string) bool) {
	var pending []string
	for k, v := range tx.writes {
		if v != nil && k >= from && (to == "" || k < to) {
			pending = append(pending, k)
		}
	}
	sort.Strings(pending)

	stopped := false
	walk := func(k string) bool {
		for len(pending) > 0 && pending[0] < k {
			if !visit(pending[0]) {
				stopped = true
				return false
			}
			pending = pending[1:]
		}
		if _, overlaid := tx.writes[k]; overlaid {
			// the overlay decides; live overlay keys are in pending
			return true
		}
		if !visit(k) {
			stopped = true
			return false
		}
		return true
	}
	if to == "" {
		tx.store.index.AscendGreaterOrEqual(from, walk)
	} else {
		tx.store.index.AscendRange(from, to, walk)
	}
	if stopped {
		return
	}
	for _, k := range pending {
		if !visit(k) {
			return
		}
	}
}

// prefixEnd returns the smallest string greater than every string starting
// with prefix, or "" when there is none.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// Emit queues an event that is published only if the transaction commits.
func (tx *Tx) Emit(typ string, principal models.Principal, attrs map[string]any) {
	if tx.readOnly {
		return
	}
	tx.events = append(tx.events, models.Event{
		ID:        uuid.NewString(),
		Seq:       tx.seq,
		Index:     len(tx.events),
		Type:      typ,
		Principal: principal,
		At:        tx.now,
		Attrs:     attrs,
	})
}

// Events returns the events queued so far.
func (tx *Tx) Events() []models.Event {
	return tx.events
}

func (tx *Tx) changes() []Change {
	out := make([]Change, 0, len(tx.writes))
	for k, v := range tx.writes {
		if v == nil {
			if _, existed := tx.store.data[k]; !existed {
				continue
			}
			out = append(out, Change{Key: k, Deleted: true})
			continue
		}
		out = append(out, Change{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
