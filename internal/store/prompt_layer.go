package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// PromptLayerStore persists immutable, versioned prompt fragments. Satisfies
// internal/prompt.LayerStore via GetActive. Activate implements the spec's
// "deactivate-all-then-activate-target" invariant inside a single
// transaction, grounded on internal/storage/cockroach.go's pattern of
// wrapping multi-statement invariants in sql.Tx (that file doesn't need a
// multi-row transactional invariant itself, but the teacher's pool/ctx
// plumbing carries over directly).
type PromptLayerStore struct {
	db *sql.DB
}

func NewPromptLayerStore(db *sql.DB) *PromptLayerStore { return &PromptLayerStore{db: db} }

// Create inserts a new immutable layer version, auto-incrementing Version to
// the smallest positive integer not yet taken for (ProjectID, LayerType).
func (s *PromptLayerStore) Create(ctx context.Context, layer *models.PromptLayer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin create layer tx: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM prompt_layers WHERE project_id=$1 AND layer_type=$2`,
		layer.ProjectID, layer.LayerType,
	).Scan(&maxVersion); err != nil {
		return fmt.Errorf("store: resolve next layer version: %w", err)
	}
	layer.Version = int(maxVersion.Int64) + 1
	if layer.ID == "" {
		layer.ID = uuid.NewString()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prompt_layers (id, project_id, layer_type, version, content, is_active, created_by, change_reason, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		layer.ID, layer.ProjectID, layer.LayerType, layer.Version, layer.Content, layer.IsActive,
		layer.CreatedBy, layer.ChangeReason, layer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert layer: %w", err)
	}
	return tx.Commit()
}

// GetByID returns (nil, nil) when layerID is unknown. Used to resolve the
// (projectID, layerType) a bare layer id belongs to before activating it.
func (s *PromptLayerStore) GetByID(ctx context.Context, layerID string) (*models.PromptLayer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, layer_type, version, content, is_active, created_by, change_reason, created_at
		 FROM prompt_layers WHERE id=$1`, layerID)
	layer, err := scanPromptLayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get layer: %w", err)
	}
	return layer, nil
}

// Activate deactivates every layer of layerID's type for its project and
// activates exactly layerID, inside one transaction -- the invariant is "at
// most one active layer per (project, type)" even under concurrent
// activation calls.
func (s *PromptLayerStore) Activate(ctx context.Context, layerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin activate tx: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	var layerType models.PromptLayerType
	if err := tx.QueryRowContext(ctx,
		`SELECT project_id, layer_type FROM prompt_layers WHERE id=$1`, layerID,
	).Scan(&projectID, &layerType); err == sql.ErrNoRows {
		return fmt.Errorf("store: layer %q not found", layerID)
	} else if err != nil {
		return fmt.Errorf("store: resolve layer: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_layers SET is_active=false WHERE project_id=$1 AND layer_type=$2`,
		projectID, layerType,
	); err != nil {
		return fmt.Errorf("store: deactivate layers: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_layers SET is_active=true WHERE id=$1`, layerID,
	); err != nil {
		return fmt.Errorf("store: activate layer: %w", err)
	}
	return tx.Commit()
}

// GetActive satisfies internal/prompt.LayerStore: returns (nil, nil) when no
// layer of layerType is currently active for projectID.
func (s *PromptLayerStore) GetActive(ctx context.Context, projectID string, layerType models.PromptLayerType) (*models.PromptLayer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, layer_type, version, content, is_active, created_by, change_reason, created_at
		 FROM prompt_layers WHERE project_id=$1 AND layer_type=$2 AND is_active=true`,
		projectID, layerType,
	)
	layer, err := scanPromptLayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get active layer: %w", err)
	}
	return layer, nil
}

// ListVersions returns every version of layerType for projectID, newest
// first -- immutable rows, so this is the full history including inactive
// and rolled-back versions.
func (s *PromptLayerStore) ListVersions(ctx context.Context, projectID string, layerType models.PromptLayerType) ([]*models.PromptLayer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, layer_type, version, content, is_active, created_by, change_reason, created_at
		 FROM prompt_layers WHERE project_id=$1 AND layer_type=$2 ORDER BY version DESC`,
		projectID, layerType,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list layer versions: %w", err)
	}
	defer rows.Close()

	var out []*models.PromptLayer
	for rows.Next() {
		layer, err := scanPromptLayer(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan layer: %w", err)
		}
		out = append(out, layer)
	}
	return out, rows.Err()
}

func scanPromptLayer(row rowScanner) (*models.PromptLayer, error) {
	var l models.PromptLayer
	if err := row.Scan(&l.ID, &l.ProjectID, &l.LayerType, &l.Version, &l.Content, &l.IsActive,
		&l.CreatedBy, &l.ChangeReason, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
