package webhook

import (
	"context"
	"sync"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryWebhookStore is a thread-safe in-memory WebhookStore, used by tests.
type MemoryWebhookStore struct {
	mu       sync.Mutex
	webhooks map[string]*models.Webhook
}

func NewMemoryWebhookStore() *MemoryWebhookStore {
	return &MemoryWebhookStore{webhooks: make(map[string]*models.Webhook)}
}

func (s *MemoryWebhookStore) Put(hook *models.Webhook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[hook.ID] = hook
}

func (s *MemoryWebhookStore) Get(ctx context.Context, webhookID string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhooks[webhookID], nil
}
