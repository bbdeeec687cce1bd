package approval

import (
	"context"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store, suitable for single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.ApprovalRequest
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*models.ApprovalRequest)}
}

// Create stores req, keyed by its ID.
func (s *MemoryStore) Create(ctx context.Context, req *models.ApprovalRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

// Get returns the request with the given ID, or nil if absent.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[id], nil
}

// Update overwrites the stored request with the same ID.
func (s *MemoryStore) Update(ctx context.Context, req *models.ApprovalRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

// ListByProject returns every request (any status) belonging to projectID.
// Gate.ListPending filters this down to non-expired pending entries.
func (s *MemoryStore) ListByProject(ctx context.Context, projectID string) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ApprovalRequest
	for _, req := range s.requests {
		if req.ProjectID == projectID {
			result = append(result, req)
		}
	}
	return result, nil
}
