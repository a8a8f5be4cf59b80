package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory implementation (Note: records lost
// on restart, suitable for single-instance deployments and tests).
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	lastSweep time.Time
	now       func() time.Time // injectable clock for tests
}

// NewMemoryStore initializes in-memory seen-event storage with the given
// retention window.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryStore{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// FirstSeen records hash if unseen. Check and insert happen under one lock
// acquisition, so concurrent calls with the same hash serialize and only one
// returns true.
func (m *MemoryStore) FirstSeen(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeLocked(now)

	if at, ok := m.seen[hash]; ok && now.Sub(at) < m.retention {
		return false, nil
	}
	m.seen[hash] = now
	return true, nil
}

// Len reports the number of retained records. Used by the sweep loop for
// logging and by tests.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Sweep drops expired records immediately instead of waiting for the lazy
// purge on access.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.seen)
	m.lastSweep = time.Time{} // force purge
	m.purgeLocked(m.now())
	return before - len(m.seen)
}

// purgeLocked walks the map at most once per minute to keep FirstSeen cheap
// under bursts. Caller holds the lock.
func (m *MemoryStore) purgeLocked(now time.Time) {
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for h, at := range m.seen {
		if now.Sub(at) >= m.retention {
			delete(m.seen, h)
		}
	}
}

// Close implements the SeenStore interface.
func (m *MemoryStore) Close() error {
	return nil
}
