package session

import (
	"context"
	"sync"
	"time"
)

// Store is an in-memory registry of live sessions. Sessions idle for longer
// than the TTL are dropped.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a Store. A non-positive ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (st *Store) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.id] = s
}

// Get returns the live session with the given ID.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || st.expired(s, st.now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session. Unknown IDs are ignored.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of sessions held, including expired ones not yet
// swept.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) expired(s *Session, now time.Time) bool {
	return st.ttl > 0 && s.idleSince(now) >= st.ttl
}

// sweep drops expired sessions and returns how many were removed.
func (st *Store) sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if st.expired(s, now) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps expired sessions every ttl until ctx is cancelled.
func (st *Store) StartCleanup(ctx context.Context) {
	if st.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(st.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				st.sweep(now)
			}
		}
	}()
}
