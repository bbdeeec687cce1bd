package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// WebhookStore persists inbound trigger endpoints. Satisfies
// internal/webhook.WebhookStore (Get).
type WebhookStore struct {
	db *sql.DB
}

func NewWebhookStore(db *sql.DB) *WebhookStore { return &WebhookStore{db: db} }

func (s *WebhookStore) Create(ctx context.Context, hook *models.Webhook) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, project_id, agent_id, name, trigger_prompt, secret_env_var, allowed_ips, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		hook.ID, hook.ProjectID, hook.AgentID, hook.Name, hook.TriggerPrompt, hook.SecretEnvVar,
		pq.Array(hook.AllowedIPs), hook.Status,
	)
	if err != nil {
		return fmt.Errorf("store: create webhook: %w", err)
	}
	return nil
}

// Get satisfies internal/webhook.WebhookStore: returns (nil, nil) when the
// webhook id is unknown.
func (s *WebhookStore) Get(ctx context.Context, webhookID string) (*models.Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, agent_id, name, trigger_prompt, secret_env_var, allowed_ips, status
		 FROM webhooks WHERE id=$1`, webhookID)
	hook, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get webhook: %w", err)
	}
	return hook, nil
}

func (s *WebhookStore) Update(ctx context.Context, hook *models.Webhook) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET agent_id=$2, name=$3, trigger_prompt=$4, secret_env_var=$5, allowed_ips=$6, status=$7
		 WHERE id=$1`,
		hook.ID, hook.AgentID, hook.Name, hook.TriggerPrompt, hook.SecretEnvVar, pq.Array(hook.AllowedIPs), hook.Status,
	)
	if err != nil {
		return fmt.Errorf("store: update webhook: %w", err)
	}
	return nil
}

func (s *WebhookStore) ListByProject(ctx context.Context, projectID string) ([]*models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, agent_id, name, trigger_prompt, secret_env_var, allowed_ips, status
		 FROM webhooks WHERE project_id=$1 ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list webhooks: %w", err)
	}
	defer rows.Close()

	var out []*models.Webhook
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan webhook: %w", err)
		}
		out = append(out, hook)
	}
	return out, rows.Err()
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var h models.Webhook
	var allowedIPs pq.StringArray
	if err := row.Scan(&h.ID, &h.ProjectID, &h.AgentID, &h.Name, &h.TriggerPrompt, &h.SecretEnvVar,
		&allowedIPs, &h.Status); err != nil {
		return nil, err
	}
	h.AllowedIPs = []string(allowedIPs)
	return &h, nil
}
