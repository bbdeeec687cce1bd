package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// SessionStore persists conversation threads. Satisfies
// internal/inbound.SessionStore (FindActiveByContact/Create) and
// internal/webhook.SessionStore (Create). Grounded on
// internal/inbound.MemorySessionStore's semantics: "most recent active
// session for a contact", here expressed as an ORDER BY created_at DESC
// LIMIT 1 query instead of a single-slot map.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, status, metadata, created_at, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		session.ID, session.ProjectID, session.Status, meta, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// FindActiveByContact returns the most recently created active session
// whose metadata carries contactID, or (nil, nil) if none exists.
func (s *SessionStore) FindActiveByContact(ctx context.Context, projectID, contactID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, status, metadata, created_at, expires_at
		 FROM sessions
		 WHERE project_id=$1 AND status='active' AND metadata->>'contactId'=$2
		 ORDER BY created_at DESC LIMIT 1`,
		projectID, contactID,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, status, metadata, created_at, expires_at FROM sessions WHERE id=$1`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) ListByProject(ctx context.Context, projectID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, status, metadata, created_at, expires_at
		 FROM sessions WHERE project_id=$1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SessionStore) Close(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status='closed' WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("store: close session: %w", err)
	}
	return nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var meta []byte
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Status, &meta, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &sess, nil
}
