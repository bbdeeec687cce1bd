package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MessageStore persists per-session conversation turns. Satisfies
// internal/inbound.MessageStore (ListBySession).
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) error {
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("store: marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("store: marshal tool results: %w", err)
	}
	usage, err := json.Marshal(msg.Usage)
	if err != nil {
		return fmt.Errorf("store: marshal usage: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, tool_calls, tool_results, usage, trace_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, toolCalls, toolResults, usage, msg.TraceID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create message: %w", err)
	}
	return nil
}

// ListBySession returns a session's messages in turn order, satisfying
// internal/inbound.MessageStore.
func (s *MessageStore) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_results, usage, trace_id, created_at
		 FROM messages WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var toolCalls, toolResults, usage []byte
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCalls, &toolResults, &usage,
		&msg.TraceID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if len(toolCalls) > 0 {
		if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	if len(toolResults) > 0 {
		if err := json.Unmarshal(toolResults, &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("unmarshal tool results: %w", err)
		}
	}
	if len(usage) > 0 && string(usage) != "null" {
		if err := json.Unmarshal(usage, &msg.Usage); err != nil {
			return nil, fmt.Errorf("unmarshal usage: %w", err)
		}
	}
	return &msg, nil
}
