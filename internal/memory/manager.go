// Package memory provides the four-layer memory manager: fitting messages to
// the context window (L1), pruning (L2), explicit compaction (L3), and
// optional vector-backed long-term recall (L4).
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/nexus-core/internal/memory/backend"
	"github.com/nexuscore/nexus-core/internal/memory/backend/lancedb"
	"github.com/nexuscore/nexus-core/internal/memory/backend/pgvector"
	"github.com/nexuscore/nexus-core/internal/memory/backend/sqlitevec"
	"github.com/nexuscore/nexus-core/internal/memory/embeddings"
	"github.com/nexuscore/nexus-core/internal/memory/embeddings/ollama"
	"github.com/nexuscore/nexus-core/internal/memory/embeddings/openai"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// Manager is the L4 long-term memory store: it persists MemoryEntry records
// with their embeddings and retrieves them by vector similarity, optionally
// decayed by age. L1-L3 (context-window fit, pruning, compaction) live in
// sibling files of this package and do not require a backend or embedder.
type Manager struct {
	backend  backend.Backend
	embedder embeddings.Provider
	config   *Config
	cache    *embeddingCache
	mu       sync.RWMutex
}

// Config contains configuration for the long-term memory manager.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend"`   // sqlite-vec, lancedb, pgvector
	Dimension int    `yaml:"dimension"` // Must match embedding model

	// Backend-specific config
	SQLiteVec SQLiteVecConfig `yaml:"sqlite_vec"`
	Pgvector  PgvectorConfig  `yaml:"pgvector"`
	LanceDB   LanceDBConfig   `yaml:"lancedb"`

	// Embedding provider config
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Indexing behavior
	Indexing IndexingConfig `yaml:"indexing"`

	// Search defaults
	Search SearchConfig `yaml:"search"`

	// HalfLifeDays controls exponential decay applied to similarity scores
	// in RetrieveMemories: score * 0.5^(ageDays/HalfLifeDays). Zero disables decay.
	HalfLifeDays float64 `yaml:"half_life_days"`
}

// SQLiteVecConfig contains sqlite-vec specific configuration.
type SQLiteVecConfig struct {
	Path string `yaml:"path"` // Path to database file
}

// PgvectorConfig contains pgvector specific configuration.
type PgvectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// DB is an existing database connection to reuse (set programmatically, not via config).
	DB *sql.DB `yaml:"-"`
}

// LanceDBConfig contains LanceDB specific configuration.
type LanceDBConfig struct {
	// Path is the directory path for LanceDB storage.
	Path string `yaml:"path"`

	// IndexType specifies the vector index type to use.
	IndexType string `yaml:"index_type"`

	// MetricType specifies the distance metric: cosine, l2, dot.
	MetricType string `yaml:"metric_type"`
}

// EmbeddingsConfig contains embedding provider configuration.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // openai, ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// Ollama-specific
	OllamaURL string `yaml:"ollama_url"`
}

// IndexingConfig contains configuration for automatic indexing.
type IndexingConfig struct {
	AutoIndexMessages bool `yaml:"auto_index_messages"`
	MinContentLength  int  `yaml:"min_content_length"`
	BatchSize         int  `yaml:"batch_size"`
}

// SearchConfig contains default search parameters.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float32 `yaml:"default_threshold"`
}

// NewManager creates a new memory manager with the given configuration.
// Returns (nil, nil) when memory is disabled, matching L4's "optional" contract:
// callers that find a nil Manager should treat RetrieveMemories as always empty.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	// Set defaults
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}
	if cfg.Indexing.MinContentLength == 0 {
		cfg.Indexing.MinContentLength = 10
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.7
	}

	// Initialize backend
	var b backend.Backend
	var err error
	switch cfg.Backend {
	case "sqlite-vec", "sqlite", "":
		b, err = sqlitevec.New(sqlitevec.Config{
			Path:      cfg.SQLiteVec.Path,
			Dimension: cfg.Dimension,
		})
	case "pgvector", "postgres", "postgresql":
		b, err = pgvector.New(pgvector.Config{
			DSN:       cfg.Pgvector.DSN,
			DB:        cfg.Pgvector.DB,
			Dimension: cfg.Dimension,
		})
	case "lancedb", "lance":
		b, err = lancedb.New(lancedb.Config{
			Path:       cfg.LanceDB.Path,
			Dimension:  cfg.Dimension,
			IndexType:  lancedb.IndexType(cfg.LanceDB.IndexType),
			MetricType: cfg.LanceDB.MetricType,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	// Initialize embedder
	var emb embeddings.Provider
	switch cfg.Embeddings.Provider {
	case "openai", "":
		emb, err = openai.New(openai.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
	case "ollama":
		emb, err = ollama.New(ollama.Config{
			BaseURL: cfg.Embeddings.OllamaURL,
			Model:   cfg.Embeddings.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embeddings.Provider)
	}
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// Verify dimension matches
	if emb.Dimension() != cfg.Dimension {
		b.Close()
		return nil, fmt.Errorf("dimension mismatch: config=%d, embedder=%d", cfg.Dimension, emb.Dimension())
	}

	return &Manager{
		backend:  b,
		embedder: emb,
		config:   cfg,
		cache:    newEmbeddingCache(1000), // Cache up to 1000 query embeddings
	}, nil
}

// StoreMemory persists an entry, generating its embedding if one was not
// already supplied. A nil Manager (long-term disabled) is a silent no-op,
// matching L4's "optional" contract.
func (m *Manager) StoreMemory(ctx context.Context, entry *models.MemoryEntry) error {
	if m == nil {
		return nil
	}
	if entry == nil {
		return fmt.Errorf("memory: entry is nil")
	}

	if len(entry.Embedding) == 0 && len(entry.Content) >= m.config.Indexing.MinContentLength {
		embed, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return fmt.Errorf("failed to embed entry: %w", err)
		}
		entry.Embedding = embed
	}

	return m.backend.Index(ctx, []*models.MemoryEntry{entry})
}

// Index stores memory entries in bulk, generating embeddings as needed.
func (m *Manager) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if m == nil || len(entries) == 0 {
		return nil
	}

	// Filter entries that need embeddings
	var needsEmbedding []*models.MemoryEntry
	for _, entry := range entries {
		if len(entry.Embedding) == 0 && len(entry.Content) >= m.config.Indexing.MinContentLength {
			needsEmbedding = append(needsEmbedding, entry)
		}
	}

	// Batch embed
	batchSize := m.embedder.MaxBatchSize()
	if m.config.Indexing.BatchSize > 0 && m.config.Indexing.BatchSize < batchSize {
		batchSize = m.config.Indexing.BatchSize
	}

	for i := 0; i < len(needsEmbedding); i += batchSize {
		end := i + batchSize
		if end > len(needsEmbedding) {
			end = len(needsEmbedding)
		}
		batch := needsEmbedding[i:end]

		texts := make([]string, len(batch))
		for j, entry := range batch {
			texts[j] = entry.Content
		}

		vecs, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}

		for j, entry := range batch {
			entry.Embedding = vecs[j]
		}
	}

	return m.backend.Index(ctx, entries)
}

// RetrieveParams scopes a RetrieveMemories call to a project and, optionally,
// a single session within it.
type RetrieveParams struct {
	ProjectID string
	SessionID string
}

// RetrieveMemories performs vector similarity search for query within the
// given project, returning up to topK results ordered by score descending.
// Returns an empty slice, never an error, when the Manager is nil (long-term
// disabled) so callers can unconditionally fold the result into a prompt.
// When HalfLifeDays is configured, each result's score is multiplied by
// 0.5^(ageDays/HalfLifeDays) before sorting and truncation.
func (m *Manager) RetrieveMemories(ctx context.Context, query string, topK int, params RetrieveParams) ([]*models.ScoredMemory, error) {
	if m == nil {
		return nil, nil
	}
	if topK <= 0 {
		topK = m.config.Search.DefaultLimit
	}

	cacheKey := fmt.Sprintf("%s:%s", params.ProjectID, query)
	queryEmbed, ok := m.cache.get(cacheKey)
	if !ok {
		embed, err := m.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		queryEmbed = embed
		m.cache.set(cacheKey, embed)
	}

	// Search backend.SearchModeVector with no threshold lets decay re-rank
	// freely; the limit below is enforced after decay is applied.
	results, err := m.backend.Search(ctx, queryEmbed, &backend.SearchOptions{
		ProjectID: params.ProjectID,
		SessionID: params.SessionID,
		Limit:     topK * 4, // over-fetch so decay re-ranking has room to work
		Threshold: m.config.Search.DefaultThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if m.config.HalfLifeDays > 0 {
		now := time.Now()
		for _, r := range results {
			ageDays := now.Sub(r.Entry.CreatedAt).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			r.Score *= math.Pow(0.5, ageDays/m.config.HalfLifeDays)
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	}

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Delete removes memory entries by ID.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	if m == nil {
		return nil
	}
	return m.backend.Delete(ctx, ids)
}

// Count returns the number of memories belonging to a project.
func (m *Manager) Count(ctx context.Context, projectID string) (int64, error) {
	if m == nil {
		return 0, nil
	}
	return m.backend.Count(ctx, projectID)
}

// Compact optimizes the storage backend.
func (m *Manager) Compact(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.backend.Compact(ctx)
}

// Stats returns statistics about the memory store.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	if m == nil {
		return &Stats{}, nil
	}
	total, err := m.backend.Count(ctx, "")
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalEntries:      total,
		Backend:           m.config.Backend,
		EmbeddingProvider: m.embedder.Name(),
		EmbeddingModel:    m.config.Embeddings.Model,
		Dimension:         m.config.Dimension,
	}, nil
}

// Close releases all resources.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.backend.Close()
}

// Stats contains memory store statistics.
type Stats struct {
	TotalEntries      int64  `json:"total_entries"`
	Backend           string `json:"backend"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	Dimension         int    `json:"dimension"`
}

// embeddingCache is a FIFO-eviction cache for query embeddings, keyed by
// "projectID:query". It trades perfect recency tracking for a single mutex
// and a plain slice, which is adequate for a cache whose only purpose is to
// avoid re-embedding the same recent queries within a turn.
type embeddingCache struct {
	mu       sync.RWMutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{
		items:    make(map[string][]float32),
		capacity: capacity,
	}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			// Evict oldest
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
