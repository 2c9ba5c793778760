package device

import (
	"sync"

	"olmera/internal/domain"
)

// sessionLocks hands out one mutex per session ID so read-modify-write
// cycles against a ratchet never interleave. Entries are never removed;
// the map is bounded by the number of sessions the device has seen.
type sessionLocks struct {
	mu sync.Mutex
	m  map[domain.SessionID]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[domain.SessionID]*sync.Mutex)}
}

// lock acquires the session's mutex and returns the release func.
func (l *sessionLocks) lock(id domain.SessionID) func() {
	l.mu.Lock()
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
