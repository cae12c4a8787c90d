package projection

import (
	"sync"
	"time"

	"github.com/private-escrow/escrowd/internal/escrow"
)

// Store holds snapshots and pending hints per agreement id. An authoritative
// replace always wins over any hint recorded before it.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	hints     map[string]*Hint

	// onChange fires after every visible change, outside the lock
	onChange func(id string)
}

func NewStore(onChange func(id string)) *Store {
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Store{
		snapshots: make(map[string]*Snapshot),
		hints:     make(map[string]*Hint),
		onChange:  onChange,
	}
}

// Replace installs a fresh authoritative snapshot and drops any hint for the
// id, confirmed or not.
func (st *Store) Replace(id string, snap *Snapshot) {
	st.mu.Lock()
	st.snapshots[id] = snap
	delete(st.hints, id)
	st.mu.Unlock()
	st.onChange(id)
}

// ReplaceDiscussion swaps only the discussion log, leaving the rest of the
// snapshot and any hint alone. Used by the slower discussion poll.
func (st *Store) ReplaceDiscussion(id string, messages []escrow.DiscussionMessage) {
	st.mu.Lock()
	snap, ok := st.snapshots[id]
	if !ok {
		st.mu.Unlock()
		return
	}
	next := snap.Clone()
	next.Discussion = messages
	st.snapshots[id] = next
	st.mu.Unlock()
	st.onChange(id)
}

// ApplyHint merges an optimistic overlay for the id. Later hints win on
// conflicting fields.
func (st *Store) ApplyHint(id string, hint *Hint) {
	if hint.AppliedAt.IsZero() {
		hint.AppliedAt = time.Now()
	}
	st.mu.Lock()
	existing, ok := st.hints[id]
	if !ok {
		existing = &Hint{}
		st.hints[id] = existing
	}
	existing.merge(hint)
	st.mu.Unlock()
	st.onChange(id)
}

// Render returns the current view: the last authoritative snapshot with the
// pending hint, if any, applied on a copy. Nil when the id was never fetched.
func (st *Store) Render(id string) *Snapshot {
	st.mu.RLock()
	snap, ok := st.snapshots[id]
	hint := st.hints[id]
	st.mu.RUnlock()
	if !ok {
		return nil
	}
	out := snap.Clone()
	if hint != nil {
		hint.apply(out)
	}
	return out
}

// Authoritative returns the last snapshot without hints, nil when absent.
func (st *Store) Authoritative(id string) *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshots[id]
}

// HasHint reports whether an unconfirmed overlay is pending for the id.
func (st *Store) HasHint(id string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.hints[id] != nil
}

// Forget drops all local state for the id.
func (st *Store) Forget(id string) {
	st.mu.Lock()
	delete(st.snapshots, id)
	delete(st.hints, id)
	st.mu.Unlock()
}
