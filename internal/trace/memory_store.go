package trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store, suitable for tests and for
// running without the Postgres-backed repository.
type MemoryStore struct {
	mu      sync.RWMutex
	traces  map[string]*models.ExecutionTrace
	bySess  map[string][]string // sessionID -> trace IDs, in persist order
}

// NewMemoryStore creates an empty in-memory trace Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces: make(map[string]*models.ExecutionTrace),
		bySess: make(map[string][]string),
	}
}

// Persist implements Store. It overwrites any prior snapshot with the same
// ID rather than erroring -- a Recorder only ever calls Persist once per
// trace, but a retried finalize should be idempotent.
func (s *MemoryStore) Persist(ctx context.Context, t *models.ExecutionTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.traces[t.ID]; !exists {
		s.bySess[t.SessionID] = append(s.bySess[t.SessionID], t.ID)
	}
	s.traces[t.ID] = t
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ExecutionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[id]
	if !ok {
		return nil, fmt.Errorf("trace: %q not found", id)
	}
	return t, nil
}

// ListBySession implements Store, returning traces in the order they were
// persisted.
func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string) ([]*models.ExecutionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySess[sessionID]
	out := make([]*models.ExecutionTrace, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.traces[id])
	}
	return out, nil
}
