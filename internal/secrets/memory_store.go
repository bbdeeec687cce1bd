package secrets

import (
	"context"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store, used by tests and any
// deployment that doesn't need durable secrets.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]*models.Secret // key: projectID/key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]*models.Secret)}
}

func storeKey(projectID, key string) string {
	return projectID + "/" + key
}

func (s *MemoryStore) Get(ctx context.Context, projectID, key string) (*models.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secrets[storeKey(projectID, key)], nil
}

func (s *MemoryStore) Put(ctx context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *secret
	s.secrets[storeKey(secret.ProjectID, secret.Key)] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, projectID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, storeKey(projectID, key))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, projectID string) ([]*models.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Secret
	for _, secret := range s.secrets {
		if secret.ProjectID == projectID {
			out = append(out, secret)
		}
	}
	return out, nil
}
