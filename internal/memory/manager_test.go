package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

func TestNewManager_Nil(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("NewManager(nil) error = %v", err)
	}
	if m != nil {
		t.Error("expected nil manager for nil config")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	m, err := NewManager(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager(disabled) error = %v", err)
	}
	if m != nil {
		t.Error("expected nil manager when Enabled is false")
	}
}

func TestNewManager_UnknownBackend(t *testing.T) {
	_, err := NewManager(&Config{Enabled: true, Backend: "not-a-real-backend"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// A nil *Manager must behave as a no-op/empty-result L4, so that callers
// which skip constructing a manager (long-term memory disabled) don't need
// to nil-check before every call.
func TestNilManager_IsNoOp(t *testing.T) {
	var m *Manager

	if err := m.StoreMemory(context.Background(), &models.MemoryEntry{Content: "x"}); err != nil {
		t.Errorf("StoreMemory on nil manager error = %v", err)
	}
	if err := m.Index(context.Background(), []*models.MemoryEntry{{Content: "x"}}); err != nil {
		t.Errorf("Index on nil manager error = %v", err)
	}
	results, err := m.RetrieveMemories(context.Background(), "query", 5, RetrieveParams{ProjectID: "proj-1"})
	if err != nil {
		t.Errorf("RetrieveMemories on nil manager error = %v", err)
	}
	if results != nil {
		t.Errorf("RetrieveMemories on nil manager = %v, want nil", results)
	}
	if err := m.Delete(context.Background(), []string{"id"}); err != nil {
		t.Errorf("Delete on nil manager error = %v", err)
	}
	count, err := m.Count(context.Background(), "proj-1")
	if err != nil || count != 0 {
		t.Errorf("Count on nil manager = (%d, %v), want (0, nil)", count, err)
	}
	if err := m.Compact(context.Background()); err != nil {
		t.Errorf("Compact on nil manager error = %v", err)
	}
	stats, err := m.Stats(context.Background())
	if err != nil || stats == nil || stats.TotalEntries != 0 {
		t.Errorf("Stats on nil manager = (%+v, %v)", stats, err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close on nil manager error = %v", err)
	}
}

func TestConfig_Struct(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		Backend:      "sqlite-vec",
		Dimension:    1536,
		HalfLifeDays: 30,
	}
	if !cfg.Enabled {
		t.Error("Enabled should be true")
	}
	if cfg.Backend != "sqlite-vec" {
		t.Errorf("Backend = %q, want sqlite-vec", cfg.Backend)
	}
	if cfg.HalfLifeDays != 30 {
		t.Errorf("HalfLifeDays = %f, want 30", cfg.HalfLifeDays)
	}
}

func TestSQLiteVecConfig_Struct(t *testing.T) {
	cfg := SQLiteVecConfig{Path: "/tmp/test.db"}
	if cfg.Path != "/tmp/test.db" {
		t.Errorf("Path = %q, want /tmp/test.db", cfg.Path)
	}
}

func TestLanceDBConfig_Struct(t *testing.T) {
	cfg := LanceDBConfig{Path: "/tmp/lance", IndexType: "flat", MetricType: "cosine"}
	if cfg.Path != "/tmp/lance" || cfg.IndexType != "flat" || cfg.MetricType != "cosine" {
		t.Errorf("unexpected LanceDBConfig: %+v", cfg)
	}
}

func TestEmbeddingsConfig_Struct(t *testing.T) {
	cfg := EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small"}
	if cfg.Provider != "openai" || cfg.Model != "text-embedding-3-small" {
		t.Errorf("unexpected EmbeddingsConfig: %+v", cfg)
	}
}

func TestIndexingConfig_Struct(t *testing.T) {
	cfg := IndexingConfig{AutoIndexMessages: true, MinContentLength: 20, BatchSize: 50}
	if !cfg.AutoIndexMessages || cfg.MinContentLength != 20 || cfg.BatchSize != 50 {
		t.Errorf("unexpected IndexingConfig: %+v", cfg)
	}
}

func TestStats_Struct(t *testing.T) {
	s := Stats{TotalEntries: 42, Backend: "sqlite-vec", Dimension: 1536}
	if s.TotalEntries != 42 || s.Backend != "sqlite-vec" || s.Dimension != 1536 {
		t.Errorf("unexpected Stats: %+v", s)
	}
}

func TestNewEmbeddingCache(t *testing.T) {
	cache := newEmbeddingCache(10)
	if cache == nil {
		t.Fatal("newEmbeddingCache returned nil")
	}
	if cache.capacity != 10 {
		t.Errorf("capacity = %d, want 10", cache.capacity)
	}
	if cache.items == nil {
		t.Error("items map should be initialized")
	}
}

func TestEmbeddingCache_SetAndGet(t *testing.T) {
	c := newEmbeddingCache(10)
	c.set("key1", []float32{1, 2, 3})

	v, ok := c.get("key1")
	if !ok {
		t.Fatal("expected key1 to be present")
	}
	if len(v) != 3 || v[0] != 1 || v[1] != 2 || v[2] != 3 {
		t.Errorf("v = %v, want [1 2 3]", v)
	}
}

func TestEmbeddingCache_GetMiss(t *testing.T) {
	c := newEmbeddingCache(10)
	if _, ok := c.get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestEmbeddingCache_Update(t *testing.T) {
	c := newEmbeddingCache(10)
	c.set("key1", []float32{1})
	c.set("key1", []float32{2})

	v, ok := c.get("key1")
	if !ok || len(v) != 1 || v[0] != 2 {
		t.Errorf("v = %v, want [2]", v)
	}
	if len(c.order) != 1 {
		t.Errorf("expected order to have 1 entry after update, got %d", len(c.order))
	}
}

func TestEmbeddingCache_Eviction(t *testing.T) {
	c := newEmbeddingCache(2)
	c.set("key1", []float32{1})
	c.set("key2", []float32{2})
	c.set("key3", []float32{3})

	if _, ok := c.get("key1"); ok {
		t.Error("expected key1 to be evicted")
	}
	if _, ok := c.get("key2"); !ok {
		t.Error("expected key2 to remain")
	}
	if _, ok := c.get("key3"); !ok {
		t.Error("expected key3 to remain")
	}
}

func TestEmbeddingCache_EmptyCapacity(t *testing.T) {
	c := newEmbeddingCache(0)
	c.set("key1", []float32{1})
	if _, ok := c.get("key1"); ok {
		t.Error("expected zero-capacity cache to evict immediately")
	}
}

func TestEmbeddingCache_SingleElement(t *testing.T) {
	c := newEmbeddingCache(1)
	c.set("key1", []float32{1})
	c.set("key2", []float32{2})

	if _, ok := c.get("key1"); ok {
		t.Error("expected key1 to be evicted")
	}
	if v, ok := c.get("key2"); !ok || v[0] != 2 {
		t.Errorf("expected key2 to remain with value [2], got %v, %v", v, ok)
	}
}

func TestEmbeddingCache_ConcurrentAccess(t *testing.T) {
	c := newEmbeddingCache(100)
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 20; j++ {
				c.set("key", []float32{float32(n)})
				c.get("key")
			}
			done <- struct{}{}
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestDecay_ExponentialFormula(t *testing.T) {
	now := time.Now()
	entry := &models.MemoryEntry{CreatedAt: now.Add(-30 * 24 * time.Hour)}
	score := 1.0
	halfLife := 30.0

	ageDays := now.Sub(entry.CreatedAt).Hours() / 24
	decayed := score * math.Pow(0.5, ageDays/halfLife)

	if decayed < 0.49 || decayed > 0.51 {
		t.Errorf("decayed score at one half-life = %f, want ~0.5", decayed)
	}
}
