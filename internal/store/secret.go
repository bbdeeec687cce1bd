package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// SecretStore persists per-project AEAD envelopes. Satisfies
// internal/secrets.Store. Only ever handles hex-encoded ciphertext --
// plaintext never reaches this layer.
type SecretStore struct {
	db *sql.DB
}

func NewSecretStore(db *sql.DB) *SecretStore { return &SecretStore{db: db} }

// Get returns (nil, nil) when no secret is set for (projectID, key).
func (s *SecretStore) Get(ctx context.Context, projectID, key string) (*models.Secret, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, key, encrypted_value, iv, auth_tag, description, created_at, updated_at
		 FROM secrets WHERE project_id=$1 AND key=$2`, projectID, key)
	secret, err := scanSecret(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get secret: %w", err)
	}
	return secret, nil
}

// Put upserts a secret envelope, keyed by (project_id, key).
func (s *SecretStore) Put(ctx context.Context, secret *models.Secret) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (id, project_id, key, encrypted_value, iv, auth_tag, description, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (project_id, key) DO UPDATE SET
		   encrypted_value=EXCLUDED.encrypted_value, iv=EXCLUDED.iv, auth_tag=EXCLUDED.auth_tag,
		   description=EXCLUDED.description, updated_at=EXCLUDED.updated_at`,
		secret.ID, secret.ProjectID, secret.Key, secret.EncryptedValue, secret.IV, secret.AuthTag,
		secret.Description, secret.CreatedAt, secret.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: put secret: %w", err)
	}
	return nil
}

func (s *SecretStore) Delete(ctx context.Context, projectID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE project_id=$1 AND key=$2`, projectID, key)
	if err != nil {
		return fmt.Errorf("store: delete secret: %w", err)
	}
	return nil
}

func (s *SecretStore) List(ctx context.Context, projectID string) ([]*models.Secret, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, key, encrypted_value, iv, auth_tag, description, created_at, updated_at
		 FROM secrets WHERE project_id=$1 ORDER BY key ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list secrets: %w", err)
	}
	defer rows.Close()

	var out []*models.Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan secret: %w", err)
		}
		out = append(out, secret)
	}
	return out, rows.Err()
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	var sec models.Secret
	if err := row.Scan(&sec.ID, &sec.ProjectID, &sec.Key, &sec.EncryptedValue, &sec.IV, &sec.AuthTag,
		&sec.Description, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return nil, err
	}
	return &sec, nil
}
