package models

import "time"

// TraceStatus is the lifecycle state of an ExecutionTrace.
type TraceStatus string

const (
	TraceRunning   TraceStatus = "running"
	TraceCompleted TraceStatus = "completed"
	TraceFailed    TraceStatus = "failed"
	TraceMaxTurns  TraceStatus = "max_turns"
)

// TraceEventType enumerates the ordered event kinds written to an
// ExecutionTrace during a turn.
type TraceEventType string

const (
	EventLLMRequest    TraceEventType = "llm_request"
	EventLLMResponse   TraceEventType = "llm_response"
	EventToolCall      TraceEventType = "tool_call"
	EventToolResult    TraceEventType = "tool_result"
	EventApprovalWait  TraceEventType = "approval_wait"
	EventError         TraceEventType = "error"
)

// TraceEvent is one strictly-ordered entry in an ExecutionTrace. Ordering is
// by emission time, with insertion order as a stable tiebreaker; Seq carries
// that ordering explicitly so persisted traces remain ordered regardless of
// storage.
type TraceEvent struct {
	Seq        uint64         `json:"seq"`
	Type       TraceEventType `json:"type"`
	Time       time.Time      `json:"time"`
	Text       string         `json:"text,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolID     string         `json:"tool_id,omitempty"`
	Input      string         `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ExecutionTrace is the immutable audit record of one Agent Runner turn.
// It is built incrementally in memory and persisted atomically on finalize;
// traces are append-only after that point.
type ExecutionTrace struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	SessionID        string         `json:"session_id"`
	PromptSnapshot   PromptSnapshot `json:"prompt_snapshot"`
	Events           []TraceEvent   `json:"events"`
	TotalDurationMs  int64          `json:"total_duration_ms"`
	TotalTokensUsed  int            `json:"total_tokens_used"`
	TotalCostUSD     float64        `json:"total_cost_usd"`
	TurnCount        int            `json:"turn_count"`
	Status           TraceStatus    `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// UsageRecord is the per-LLM-call cost ledger entry written by the Cost Guard.
type UsageRecord struct {
	ProjectID        string    `json:"project_id"`
	SessionID        string    `json:"session_id"`
	TraceID          string    `json:"trace_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	CacheReadTokens  int       `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int       `json:"cache_write_tokens,omitempty"`
	CostUSD          float64   `json:"cost_usd"`
	Timestamp        time.Time `json:"timestamp"`
}
