package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phessophissy/POSVault/internal/models"
)

type fakeBackend struct {
	entries  map[string][]byte
	seq      uint64
	applyErr error
	applied  []uint64
	changes  [][]Change
	events   [][]models.Event
}

func (f *fakeBackend) Load(context.Context) (map[string][]byte, uint64, error) {
	return f.entries, f.seq, nil
}

func (f *fakeBackend) Apply(_ context.Context, seq uint64, changes []Change, events []models.Event) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, seq)
	f.changes = append(f.changes, changes)
	f.events = append(f.events, events)
	return nil
}

func TestUpdate_CommitsAndAdvancesSeq(t *testing.T) {
	s := New(nil)
	err := s.Update(context.Background(), 7, func(tx *Tx) error {
		assert.Equal(t, uint64(7), tx.Now())
		assert.Equal(t, uint64(1), tx.Seq())
		return tx.Put("a", []byte("1"))
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Seq())

	require.NoError(t, s.View(7, func(tx *Tx) error {
		v, ok := tx.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "1", string(v))
		return nil
	}))
}

func TestUpdate_EmptyTransactionIsNotCommitted(t *testing.T) {
	b := &fakeBackend{}
	s := New(b)
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		_, _ = tx.Get("missing")
		return tx.Delete("missing")
	}))
	assert.Equal(t, uint64(0), s.Seq())
	assert.Empty(t, b.applied)
}

func TestUpdate_RollbackOnError(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		return tx.Put("keep", []byte("x"))
	}))

	boom := errors.New("boom")
	err := s.Update(context.Background(), 2, func(tx *Tx) error {
		require.NoError(t, tx.Put("keep", []byte("changed")))
		require.NoError(t, tx.Put("new", []byte("y")))
		require.NoError(t, tx.Delete("keep"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), s.Seq())

	require.NoError(t, s.View(2, func(tx *Tx) error {
		v, ok := tx.Get("keep")
		assert.True(t, ok)
		assert.Equal(t, "x", string(v))
		_, ok = tx.Get("new")
		assert.False(t, ok)
		return nil
	}))
}

func TestUpdate_BackendFailureLeavesStateUntouched(t *testing.T) {
	b := &fakeBackend{applyErr: errors.New("db down")}
	s := New(b)
	hookCalled := false
	s.OnCommit(func(uint64, []models.Event) { hookCalled = true })

	err := s.Update(context.Background(), 1, func(tx *Tx) error {
		tx.Emit("test.event", "alice", nil)
		return tx.Put("k", []byte("v"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist seq 1")
	assert.Equal(t, uint64(0), s.Seq())
	assert.False(t, hookCalled)
	require.NoError(t, s.View(1, func(tx *Tx) error {
		_, ok := tx.Get("k")
		assert.False(t, ok)
		return nil
	}))
}

func TestUpdate_BackendReceivesSortedChangesAndEvents(t *testing.T) {
	b := &fakeBackend{}
	s := New(b)
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		require.NoError(t, tx.Put("b", []byte("2")))
		require.NoError(t, tx.Put("a", []byte("1")))
		return nil
	}))
	require.NoError(t, s.Update(context.Background(), 2, func(tx *Tx) error {
		require.NoError(t, tx.Delete("a"))
		require.NoError(t, tx.Delete("never-existed"))
		tx.Emit("x.y", "bob", map[string]any{"n": 1})
		return nil
	}))

	require.Equal(t, []uint64{1, 2}, b.applied)
	assert.Equal(t, []Change{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}, b.changes[0])
	assert.Equal(t, []Change{{Key: "a", Deleted: true}}, b.changes[1])
	require.Len(t, b.events[1], 1)
	ev := b.events[1][0]
	assert.Equal(t, "x.y", ev.Type)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, uint64(2), ev.At)
	assert.NotEmpty(t, ev.ID)
}

func TestView_IsReadOnly(t *testing.T) {
	s := New(nil)
	err := s.View(0, func(tx *Tx) error {
		return tx.Put("k", []byte("v"))
	})
	assert.ErrorIs(t, err, ErrReadOnly)
	err = s.View(0, func(tx *Tx) error {
		return tx.Delete("k")
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestKeys_MergesOverlay(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		for _, k := range []string{"p/1", "p/2", "q/1"} {
			require.NoError(t, tx.Put(k, []byte("x")))
		}
		return nil
	}))
	require.NoError(t, s.Update(context.Background(), 2, func(tx *Tx) error {
		require.NoError(t, tx.Delete("p/1"))
		require.NoError(t, tx.Put("p/3", []byte("y")))
		assert.Equal(t, []string{"p/2", "p/3"}, tx.Keys("p/"))
		return nil
	}))
}

func TestLoad_RestoresEntriesAndSeq(t *testing.T) {
	b := &fakeBackend{entries: map[string][]byte{"k": []byte("v")}, seq: 41}
	s := New(b)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, uint64(41), s.Seq())
	require.NoError(t, s.Update(context.Background(), 0, func(tx *Tx) error {
		assert.Equal(t, uint64(42), tx.Seq())
		v, ok := tx.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "v", string(v))
		return nil
	}))
}

func TestOnCommit_ReceivesEvents(t *testing.T) {
	s := New(nil)
	var gotSeq uint64
	var got []models.Event
	s.OnCommit(func(seq uint64, events []models.Event) {
		gotSeq = seq
		got = events
	})
	require.NoError(t, s.Update(context.Background(), 3, func(tx *Tx) error {
		tx.Emit("vault.deposit", "alice", map[string]any{"amount": uint64(5)})
		return nil
	}))
	assert.Equal(t, uint64(1), gotSeq)
	require.Len(t, got, 1)
	assert.Equal(t, models.Principal("alice"), got[0].Principal)
}

func TestCodecHelpers(t *testing.T) {
	s := New(nil)
	type rec struct{ N int }
	require.NoError(t, s.Update(context.Background(), 0, func(tx *Tx) error {
		id, err := NextID(tx, "count")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)
		id, err = NextID(tx, "count")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), id)

		require.NoError(t, PutJSON(tx, "rec", rec{N: 9}))
		var r rec
		ok, err := GetJSON(tx, "rec", &r)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 9, r.N)

		ok, err = GetJSON(tx, "missing", &r)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	k := SeqKey(255)
	assert.Equal(t, "00000000000000ff", k)
	n, err := ParseSeqKey(k)
	require.NoError(t, err)
	assert.Equal(t, uint64(255), n)
}

func TestFloorFirstRange(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		for _, k := range []string{"c/a/01", "c/a/05", "c/a/09", "c/b/02", "d/1"} {
			require.NoError(t, tx.Put(k, []byte("x")))
		}
		return nil
	}))

	require.NoError(t, s.View(1, func(tx *Tx) error {
		k, ok := tx.Floor("c/a/", "c/a/07")
		assert.True(t, ok)
		assert.Equal(t, "c/a/05", k)

		k, ok = tx.Floor("c/a/", "c/a/99")
		assert.True(t, ok)
		assert.Equal(t, "c/a/09", k)

		_, ok = tx.Floor("c/a/", "c/a/00")
		assert.False(t, ok)
		_, ok = tx.Floor("c/b/", "c/b/01")
		assert.False(t, ok)

		k, ok = tx.First("c/")
		assert.True(t, ok)
		assert.Equal(t, "c/a/01", k)
		_, ok = tx.First("e/")
		assert.False(t, ok)

		assert.Equal(t, []string{"c/a/05", "c/a/09", "c/b/02"}, tx.Range("c/a/02", "c/b/05"))
		assert.Equal(t, []string{"d/1"}, tx.Range("d/", ""))
		return nil
	}))

	require.NoError(t, s.Update(context.Background(), 2, func(tx *Tx) error {
		require.NoError(t, tx.Delete("c/a/05"))
		require.NoError(t, tx.Put("c/a/06", []byte("y")))
		require.NoError(t, tx.Put("c/a/00", []byte("y")))

		k, ok := tx.Floor("c/a/", "c/a/07")
		assert.True(t, ok)
		assert.Equal(t, "c/a/06", k)

		require.NoError(t, tx.Delete("c/a/06"))
		k, ok = tx.Floor("c/a/", "c/a/07")
		assert.True(t, ok)
		assert.Equal(t, "c/a/01", k)

		k, ok = tx.First("c/a/")
		assert.True(t, ok)
		assert.Equal(t, "c/a/00", k)
		return nil
	}))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "p0", prefixEnd("p/"))
	assert.Equal(t, "b", prefixEnd("a\xff"))
	assert.Equal(t, "", prefixEnd("\xff\xff"))
	assert.Equal(t, "", prefixEnd(""))
}

func TestEmit_NumbersEventsWithinCommit(t *testing.T) {
	s := New(nil)
	var got []models.Event
	s.OnCommit(func(_ uint64, events []models.Event) { got = events })
	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		tx.Emit("ledger.transfer", "alice", nil)
		tx.Emit("ledger.mint", "alice", nil)
		tx.Emit("vault.withdraw", "alice", nil)
		return nil
	}))
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, uint64(1), ev.Seq)
	}
}

// lostAckBackend stores a transaction but reports a failure, as when the
// connection drops while COMMIT is in flight.
type lostAckBackend struct {
	fakeBackend
	failNext error
	ctxErrs  []error
}

func (b *lostAckBackend) Apply(ctx context.Context, seq uint64, changes []Change, events []models.Event) error {
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	if err := b.failNext; err != nil {
		b.failNext = nil
		if errors.Is(err, ErrSeqConflict) {
			return err
		}
		b.store(seq, changes)
		return err
	}
	b.store(seq, changes)
	return nil
}

func (b *lostAckBackend) store(seq uint64, changes []Change) {
	if b.entries == nil {
		b.entries = make(map[string][]byte)
	}
	for _, c := range changes {
		if c.Deleted {
			delete(b.entries, c.Key)
			continue
		}
		b.entries[c.Key] = c.Value
	}
	b.seq = seq
	b.applied = append(b.applied, seq)
}

func (b *lostAckBackend) Load(context.Context) (map[string][]byte, uint64, error) {
	out := make(map[string][]byte, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out, b.seq, nil
}

func TestUpdate_LostCommitAckIsRecovered(t *testing.T) {
	b := &lostAckBackend{failNext: errors.New("driver: bad connection")}
	s := New(b)
	var hooked []uint64
	s.OnCommit(func(seq uint64, _ []models.Event) { hooked = append(hooked, seq) })

	require.NoError(t, s.Update(context.Background(), 1, func(tx *Tx) error {
		return tx.Put("k", []byte("1"))
	}))
	assert.Equal(t, uint64(1), s.Seq())
	assert.Equal(t, []uint64{1}, hooked)

	require.NoError(t, s.Update(context.Background(), 2, func(tx *Tx) error {
		v, ok := tx.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "1", string(v))
		return tx.Put("k", []byte("2"))
	}))
	assert.Equal(t, uint64(2), s.Seq())
	assert.Equal(t, []uint64{1, 2}, b.applied)
}

func TestUpdate_SeqConflictCatchesUp(t *testing.T) {
	b := &lostAckBackend{}
	b.entries = map[string][]byte{"k": []byte("other")}
	b.seq = 1
	b.failNext = fmt.Errorf("seq 1: %w", ErrSeqConflict)
	s := New(b)

	err := s.Update(context.Background(), 1, func(tx *Tx) error {
		return tx.Put("k", []byte("mine"))
	})
	require.ErrorIs(t, err, ErrSeqConflict)
	assert.Equal(t, uint64(1), s.Seq())

	require.NoError(t, s.Update(context.Background(), 2, func(tx *Tx) error {
		v, _ := tx.Get("k")
		assert.Equal(t, "other", string(v))
		assert.Equal(t, uint64(2), tx.Seq())
		return tx.Put("k", []byte("mine"))
	}))
	assert.Equal(t, []uint64{2}, b.applied)
}

func TestUpdate_PersistIgnoresCallerCancellation(t *testing.T) {
	b := &lostAckBackend{}
	s := New(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Update(ctx, 1, func(tx *Tx) error {
		return tx.Put("k", []byte("v"))
	}))
	require.Len(t, b.ctxErrs, 1)
	assert.NoError(t, b.ctxErrs[0])
	assert.Equal(t, uint64(1), s.Seq())
}
