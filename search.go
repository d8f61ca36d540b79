package portal

import (
	"context"
	"sync"
	"sync/atomic"
)

// UserSearcher serializes rapid user searches with last-intent-wins
// semantics: every request is tagged with a monotonically increasing
// sequence number and responses older than the latest applied one are
// discarded, so a slow stale response can never overwrite fresher results.
// This is stronger than the fixed-delay debouncing it replaces.
type UserSearcher struct {
	store *SessionStore

	issued  atomic.Uint64
	applied atomic.Uint64

	mu     sync.RWMutex
	latest []Identity
}

func NewUserSearcher(store *SessionStore) *UserSearcher {
	return &UserSearcher{store: store}
}

// Search issues a search request. The boolean reports whether the response
// was applied; stale responses return their results with applied=false and
// leave Latest untouched.
func (s *UserSearcher) Search(ctx context.Context, term string) ([]Identity, bool, error) {
	seq := s.issued.Add(1)

	users, err := s.store.SearchUsers(ctx, term)
	if err != nil {
		return nil, false, err
	}

	if !s.apply(seq, users) {
		return users, false, nil
	}
	return users, true, nil
}

// Latest returns the most recently applied result set.
func (s *UserSearcher) Latest() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, len(s.latest))
	copy(out, s.latest)
	return out
}

func (s *UserSearcher) apply(seq uint64, users []Identity) bool {
	for {
		current := s.applied.Load()
		if seq <= current {
			return false
		}
		if s.applied.CompareAndSwap(current, seq) {
			break
		}
	}

	s.mu.Lock()
	s.latest = users
	s.mu.Unlock()
	return true
}
