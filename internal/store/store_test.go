package store

import (
	"testing"
	"time"

	"github.com/nexuscore/nexus-core/internal/approval"
	"github.com/nexuscore/nexus-core/internal/inbound"
	"github.com/nexuscore/nexus-core/internal/prompt"
	"github.com/nexuscore/nexus-core/internal/scheduler"
	"github.com/nexuscore/nexus-core/internal/secrets"
	"github.com/nexuscore/nexus-core/internal/trace"
	"github.com/nexuscore/nexus-core/internal/webhook"
)

// These assertions are the real test of this package: every Postgres-backed
// store must satisfy the narrow interface its consuming package declares,
// with no adapter layer in between. A change here that breaks one of these
// lines is a change that breaks wiring, not just a lint nit.
var (
	_ prompt.LayerStore = (*PromptLayerStore)(nil)

	_ approval.Store = (*ApprovalStore)(nil)

	_ trace.Store = (*TraceStore)(nil)

	_ inbound.ContactStore = (*ContactStore)(nil)
	_ inbound.SessionStore = (*SessionStore)(nil)
	_ inbound.MessageStore = (*MessageStore)(nil)

	_ scheduler.Store               = (*ScheduledTaskStore)(nil)
	_ scheduler.AgentConfigResolver = (*ProjectStore)(nil)

	_ webhook.WebhookStore        = (*WebhookStore)(nil)
	_ webhook.SessionStore        = (*SessionStore)(nil)
	_ webhook.AgentConfigResolver = (*WebhookAgentConfigResolver)(nil)

	_ secrets.Store = (*SecretStore)(nil)
)

// No live Postgres connection is available in this test environment --
// NewStoreSetFromDSN and the SQL each per-entity store issues are exercised
// indirectly by the interface assertions above plus each consuming
// package's own in-memory-store-backed tests. What's left to check here is
// the pool configuration this package owns outright.
func TestDefaultConfig_MatchesCockroachPoolSizing(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %d, want 5", cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 5m", cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime != 2*time.Minute {
		t.Errorf("ConnMaxIdleTime = %v, want 2m", cfg.ConnMaxIdleTime)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
}

func TestNewStoreSetFromDSN_RejectsEmptyDSN(t *testing.T) {
	if _, err := NewStoreSetFromDSN("", nil); err == nil {
		t.Fatal("expected error for empty dsn, got nil")
	}
}
