package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// TraceStore persists ExecutionTraces. Satisfies internal/trace.Store.
// Traces are written once, atomically, on finalize -- Persist is an insert,
// never an update, matching the append-only invariant documented on
// models.ExecutionTrace.
type TraceStore struct {
	db *sql.DB
}

func NewTraceStore(db *sql.DB) *TraceStore { return &TraceStore{db: db} }

func (s *TraceStore) Persist(ctx context.Context, t *models.ExecutionTrace) error {
	snapshot, err := json.Marshal(t.PromptSnapshot)
	if err != nil {
		return fmt.Errorf("store: marshal prompt snapshot: %w", err)
	}
	events, err := json.Marshal(t.Events)
	if err != nil {
		return fmt.Errorf("store: marshal trace events: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_traces
		 (id, project_id, session_id, prompt_snapshot, events, total_duration_ms, total_tokens_used,
		  total_cost_usd, turn_count, status, created_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.ProjectID, t.SessionID, snapshot, events, t.TotalDurationMs, t.TotalTokensUsed,
		t.TotalCostUSD, t.TurnCount, t.Status, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: persist trace: %w", err)
	}
	return nil
}

func (s *TraceStore) Get(ctx context.Context, id string) (*models.ExecutionTrace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, session_id, prompt_snapshot, events, total_duration_ms, total_tokens_used,
		        total_cost_usd, turn_count, status, created_at, completed_at
		 FROM execution_traces WHERE id=$1`, id)
	trace, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get trace: %w", err)
	}
	return trace, nil
}

func (s *TraceStore) ListBySession(ctx context.Context, sessionID string) ([]*models.ExecutionTrace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, session_id, prompt_snapshot, events, total_duration_ms, total_tokens_used,
		        total_cost_usd, turn_count, status, created_at, completed_at
		 FROM execution_traces WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list traces: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionTrace
	for rows.Next() {
		trace, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan trace: %w", err)
		}
		out = append(out, trace)
	}
	return out, rows.Err()
}

func scanTrace(row rowScanner) (*models.ExecutionTrace, error) {
	var t models.ExecutionTrace
	var snapshot, events []byte
	if err := row.Scan(&t.ID, &t.ProjectID, &t.SessionID, &snapshot, &events, &t.TotalDurationMs,
		&t.TotalTokensUsed, &t.TotalCostUSD, &t.TurnCount, &t.Status, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &t.PromptSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal prompt snapshot: %w", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &t.Events); err != nil {
			return nil, fmt.Errorf("unmarshal trace events: %w", err)
		}
	}
	return &t, nil
}
