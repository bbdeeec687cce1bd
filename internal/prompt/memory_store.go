package prompt

import (
	"context"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryLayerStore is a thread-safe in-memory LayerStore, suitable for
// tests and for running without the Postgres-backed repository.
type MemoryLayerStore struct {
	mu     sync.RWMutex
	active map[string]*models.PromptLayer // key: projectID + "/" + layerType
}

// NewMemoryLayerStore creates an empty in-memory LayerStore.
func NewMemoryLayerStore() *MemoryLayerStore {
	return &MemoryLayerStore{active: make(map[string]*models.PromptLayer)}
}

func key(projectID string, layerType models.PromptLayerType) string {
	return projectID + "/" + string(layerType)
}

// SetActive installs layer as the active layer for its (ProjectID,
// LayerType), deactivating whatever was active before. Mirrors the
// repository invariant that at most one layer per type is active at a time.
func (s *MemoryLayerStore) SetActive(layer *models.PromptLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer.IsActive = true
	s.active[key(layer.ProjectID, layer.LayerType)] = layer
}

// Deactivate clears the active layer for a (projectID, layerType) pair.
func (s *MemoryLayerStore) Deactivate(projectID string, layerType models.PromptLayerType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, key(projectID, layerType))
}

// GetActive implements LayerStore.
func (s *MemoryLayerStore) GetActive(ctx context.Context, projectID string, layerType models.PromptLayerType) (*models.PromptLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[key(projectID, layerType)], nil
}
