package checkpoint

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. The engine uses one per sub-graph
// branch; it is also convenient in tests. Snapshots are cloned on the way in
// and out so callers never alias stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Checkpoint
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]Checkpoint{}}
}

// Load returns the checkpoint for a run id.
func (s *MemoryStore) Load(runID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.runs[runID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp.Clone(), nil
}

// Save replaces the checkpoint for cp.RunID.
func (s *MemoryStore) Save(cp Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint: run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[cp.RunID] = cp.Clone()
	return nil
}

// Runs lists stored run ids.
func (s *MemoryStore) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]string, 0, len(s.runs))
	for runID := range s.runs {
		runs = append(runs, runID)
	}
	return runs
}
