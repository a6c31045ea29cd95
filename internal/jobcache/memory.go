package jobcache

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore keeps entries in process memory. Used by tests and by runs
// that opt out of persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, sourceKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entries[sourceKey]
	return id, ok
}

func (s *MemoryStore) Put(_ context.Context, sourceKey, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sourceKey] = jobID
	return nil
}

// Snapshot returns a copy of all entries.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Assign(s.entries)
}
