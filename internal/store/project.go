package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// ProjectStore persists the tenant root. Grounded on
// internal/storage/cockroach.go's cockroachAgentStore: ExecContext with
// positional placeholders, pq.Array for string slices, json.Marshal for the
// nested config blob.
type ProjectStore struct {
	db *sql.DB
}

func NewProjectStore(db *sql.DB) *ProjectStore { return &ProjectStore{db: db} }

func (s *ProjectStore) Create(ctx context.Context, p *models.Project) error {
	if p == nil || p.ID == "" {
		return nexuserr.New(nexuserr.CodeValidation, "project id is required")
	}
	cfg, err := json.Marshal(p.AgentConfig)
	if err != nil {
		return fmt.Errorf("store: marshal agent config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner, environment, tags, agent_config, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Owner, p.Environment, pq.Array(p.Tags), cfg, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner, environment, tags, agent_config, created_at, updated_at
		 FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) Update(ctx context.Context, p *models.Project) error {
	cfg, err := json.Marshal(p.AgentConfig)
	if err != nil {
		return fmt.Errorf("store: marshal agent config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET name=$2, owner=$3, environment=$4, tags=$5, agent_config=$6, updated_at=$7
		 WHERE id=$1`,
		p.ID, p.Name, p.Owner, p.Environment, pq.Array(p.Tags), cfg, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: update project: %w", err)
	}
	return nil
}

func (s *ProjectStore) List(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner, environment, tags, agent_config, created_at, updated_at
		 FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AgentConfig satisfies internal/scheduler.AgentConfigResolver.
func (s *ProjectStore) AgentConfig(ctx context.Context, projectID string) (models.AgentConfig, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return models.AgentConfig{}, err
	}
	if p == nil {
		return models.AgentConfig{}, nexuserr.New(nexuserr.CodeNotFound, fmt.Sprintf("project %q not found", projectID))
	}
	return p.AgentConfig, nil
}

// WebhookAgentConfigResolver adapts ProjectStore to
// internal/webhook.AgentConfigResolver's three-argument shape. Webhook.AgentID
// has no corresponding entity in this data model -- a project carries exactly
// one AgentConfig -- so agentID is accepted and ignored, kept only to satisfy
// the interface the webhook package declares.
type WebhookAgentConfigResolver struct {
	Projects *ProjectStore
}

func (r *WebhookAgentConfigResolver) AgentConfig(ctx context.Context, projectID, agentID string) (models.AgentConfig, error) {
	return r.Projects.AgentConfig(ctx, projectID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var cfg []byte
	var tags pq.StringArray
	if err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.Environment, &tags, &cfg, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Tags = []string(tags)
	if err := json.Unmarshal(cfg, &p.AgentConfig); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	return &p, nil
}
