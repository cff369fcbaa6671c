package snapshot

import (
	"errors"
	"sync"
	"sync/atomic"
)

var ErrStoreClosed = errors.New("snapshot store closed")

// Store owns the live snapshot. Reads are lock-free; Publish is the single
// synchronized swap point.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	closed  bool
}

// NewStore takes ownership of initial, which must not be nil.
func NewStore(initial *Snapshot) *Store {
	st := &Store{}
	st.current.Store(initial)
	return st
}

// Current returns the live snapshot without taking a reader reference.
// Use it for ID, counts and Go-side rows; use Acquire to query the engine.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Acquire returns the live snapshot with a reader reference held. The
// caller must call Release on it when done.
func (st *Store) Acquire() (*Snapshot, error) {
	for {
		s := st.current.Load()
		if s.tryAcquire() {
			return s, nil
		}
		// Publish swaps before it releases, so a released snapshot that is
		// still current means the store was closed.
		if st.current.Load() == s {
			return nil, ErrStoreClosed
		}
	}
}

// Publish makes s the live snapshot and returns the one it replaced. The
// store's reference to the old snapshot is dropped; readers still holding
// it keep it open until they release.
func (st *Store) Publish(s *Snapshot) *Snapshot {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		s.Release()
		return nil
	}
	old := st.current.Swap(s)
	st.mu.Unlock()

	if old != nil && old != s {
		old.Release()
	}
	return old
}

// Close drops the store's reference to the live snapshot. Later Acquire
// calls fail with ErrStoreClosed and later publishes are released at once.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	st.current.Load().Release()
}
