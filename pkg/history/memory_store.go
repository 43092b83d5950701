package history

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record // contract id -> append order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ContractID] = append(s.records[rec.ContractID], rec)
	return nil
}

func (s *MemoryStore) ListByContract(_ context.Context, contractID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[contractID]
	out := make([]Record, 0, len(recs))
	// newest first
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
