package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an assistant's request to execute a tool (a persisted
// tool_use content part).
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one tool execution (a persisted tool_result
// content part), always paired with the ToolCall of the same ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Usage records token accounting for a single LLM call.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// Total returns the sum of input and output tokens, the figure the Agent
// Runner and ExecutionTrace accumulate as totalTokensUsed.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Message is one turn-ordered entry in a Session. Content is a plain string
// for simple text turns; assistant messages carrying tool_use parts populate
// ToolCalls alongside Content, and tool messages carrying tool_result parts
// populate ToolResults instead of Content.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
	TraceID     string       `json:"trace_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ToolCallIDs returns the ordered tool_use identifiers carried by an
// assistant message, used to verify tool_use/tool_result pairing.
func (m *Message) ToolCallIDs() []string {
	ids := make([]string, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		ids[i] = tc.ID
	}
	return ids
}

// ToolResultIDs returns the ordered tool_call_id references carried by a
// tool message, used to verify tool_use/tool_result pairing.
func (m *Message) ToolResultIDs() []string {
	ids := make([]string, len(m.ToolResults))
	for i, tr := range m.ToolResults {
		ids[i] = tr.ToolCallID
	}
	return ids
}
