// Package store implements the Repositories (C15): Postgres-backed
// persistence for every entity in the data model, plus in-memory
// counterparts for tests. Grounded on internal/storage/cockroach.go's
// connection-pool setup and internal/storage/interfaces.go's StoreSet
// bundling, generalized from that file's Agent/ChannelConnection/User
// trio to this system's full entity set -- each per-entity store also
// satisfies the narrow interface its consuming package already declares
// (prompt.LayerStore, approval.Store, trace.Store,
// internal/inbound.{ContactStore,SessionStore,MessageStore},
// scheduler.Store, webhook.{WebhookStore,AgentConfigResolver},
// secrets.Store) so no adapter layer sits between this package and its
// callers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config tunes the underlying *sql.DB connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig mirrors the pool sizing internal/storage/cockroach.go ships.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// StoreSet bundles every Postgres-backed repository plus the shared *sql.DB.
type StoreSet struct {
	DB             *sql.DB
	Projects       *ProjectStore
	PromptLayers   *PromptLayerStore
	Sessions       *SessionStore
	Messages       *MessageStore
	Contacts       *ContactStore
	Approvals      *ApprovalStore
	Traces         *TraceStore
	ScheduledTasks *ScheduledTaskStore
	Webhooks       *WebhookStore
	Secrets        *SecretStore
}

// Close releases the underlying connection pool.
func (s StoreSet) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// NewStoreSetFromDSN opens a Postgres connection pool and wires every
// per-entity store on top of it.
func NewStoreSetFromDSN(dsn string, cfg *Config) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("store: dsn is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("store: ping database: %w", err)
	}

	return StoreSet{
		DB:             db,
		Projects:       &ProjectStore{db: db},
		PromptLayers:   &PromptLayerStore{db: db},
		Sessions:       &SessionStore{db: db},
		Messages:       &MessageStore{db: db},
		Contacts:       &ContactStore{db: db},
		Approvals:      &ApprovalStore{db: db},
		Traces:         &TraceStore{db: db},
		ScheduledTasks: &ScheduledTaskStore{db: db},
		Webhooks:       &WebhookStore{db: db},
		Secrets:        &SecretStore{db: db},
	}, nil
}
