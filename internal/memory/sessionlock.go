package memory

import "sync"

// sessionLocks serializes writes per session without a global write lock.
// Entries are never evicted: evicting while a waiter is parked on the old
// mutex would let a third writer slip past it, and a bare mutex per seen
// session is small enough to keep.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sessionLocks) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m
}
