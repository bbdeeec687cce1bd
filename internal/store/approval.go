package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// ApprovalStore persists tool-call approval gates. Satisfies
// internal/approval.Store.
type ApprovalStore struct {
	db *sql.DB
}

func NewApprovalStore(db *sql.DB) *ApprovalStore { return &ApprovalStore{db: db} }

func (s *ApprovalStore) Create(ctx context.Context, req *models.ApprovalRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_requests
		 (id, project_id, session_id, tool_call_id, tool_id, tool_input, risk_level, status,
		  requested_at, expires_at, resolved_at, resolved_by, resolution_note)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		req.ID, req.ProjectID, req.SessionID, req.ToolCallID, req.ToolID, []byte(req.ToolInput),
		req.RiskLevel, req.Status, req.RequestedAt, req.ExpiresAt, req.ResolvedAt, req.ResolvedBy, req.ResolutionNote,
	)
	if err != nil {
		return fmt.Errorf("store: create approval request: %w", err)
	}
	return nil
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, session_id, tool_call_id, tool_id, tool_input, risk_level, status,
		        requested_at, expires_at, resolved_at, resolved_by, resolution_note
		 FROM approval_requests WHERE id=$1`, id)
	req, err := scanApprovalRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get approval request: %w", err)
	}
	return req, nil
}

func (s *ApprovalStore) Update(ctx context.Context, req *models.ApprovalRequest) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status=$2, resolved_at=$3, resolved_by=$4, resolution_note=$5
		 WHERE id=$1`,
		req.ID, req.Status, req.ResolvedAt, req.ResolvedBy, req.ResolutionNote,
	)
	if err != nil {
		return fmt.Errorf("store: update approval request: %w", err)
	}
	return nil
}

func (s *ApprovalStore) ListByProject(ctx context.Context, projectID string) ([]*models.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, session_id, tool_call_id, tool_id, tool_input, risk_level, status,
		        requested_at, expires_at, resolved_at, resolved_by, resolution_note
		 FROM approval_requests WHERE project_id=$1 ORDER BY requested_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list approval requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan approval request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanApprovalRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var toolInput []byte
	if err := row.Scan(&req.ID, &req.ProjectID, &req.SessionID, &req.ToolCallID, &req.ToolID, &toolInput,
		&req.RiskLevel, &req.Status, &req.RequestedAt, &req.ExpiresAt, &req.ResolvedAt, &req.ResolvedBy,
		&req.ResolutionNote); err != nil {
		return nil, err
	}
	req.ToolInput = toolInput
	return &req, nil
}
