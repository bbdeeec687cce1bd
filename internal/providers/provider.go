// Package providers implements the pluggable LLM backend contract (C1):
// every vendor is reached through the same Provider interface so the
// Agent Runner never branches on vendor identity.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// Provider is the contract every LLM backend adapter satisfies.
//
// Chat returns a channel of ChatEvent that the caller drains until it sees
// an Event with Type EventMessageEnd or EventError; the channel is then
// closed by the adapter's streaming goroutine.
type Provider interface {
	Chat(ctx context.Context, params ChatParams) (<-chan ChatEvent, error)
	CountTokens(messages []Message) int
	FormatTools(defs []ToolDef) (json.RawMessage, error)
	FormatToolResult(result ToolResultInput) (json.RawMessage, error)
	GetContextWindow() int
	SupportsToolUse() bool
	Name() string
}

// ChatParams is every parameter a Chat call needs.
type ChatParams struct {
	Messages      []Message
	Tools         []ToolDef
	SystemPrompt  string
	Model         string
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	TraceID       string
}

// Message is one turn of conversation handed to the provider. Role is one
// of "system", "user", "assistant", "tool".
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCallInput
	ToolResults []ToolResultInput
}

// ToolCallInput mirrors models.ToolCall for the provider boundary, avoiding
// a dependency from this package onto pkg/models.
type ToolCallInput struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultInput mirrors models.ToolResult for the provider boundary.
type ToolResultInput struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolDef is a tool's name/description/schema, as handed to the provider to
// include in the request (vendor encoding happens in FormatTools).
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// EventType discriminates ChatEvent's variants (the tagged union from §4.1).
type EventType string

const (
	EventMessageStart  EventType = "message_start"
	EventContentDelta  EventType = "content_delta"
	EventToolUseStart  EventType = "tool_use_start"
	EventToolUseDelta  EventType = "tool_use_delta"
	EventToolUseEnd    EventType = "tool_use_end"
	EventMessageEnd    EventType = "message_end"
	EventError         EventType = "error"
)

// StopReason is the terminal reason a message ended, carried on
// EventMessageEnd.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage is the token accounting reported on EventMessageEnd.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// ChatEvent is one frame of a streaming completion. Exactly one of the
// payload fields is meaningful, selected by Type.
type ChatEvent struct {
	Type EventType

	// message_start
	MessageID string

	// content_delta
	Text string

	// tool_use_start / tool_use_delta / tool_use_end
	ToolUseID      string
	ToolUseName    string
	PartialInput   string
	ToolUseInput   json.RawMessage

	// message_end
	StopReason StopReason
	Usage      Usage

	// error
	Err error
}

// Model describes one selectable model for a provider.
type Model struct {
	ID             string
	Name           string
	ContextWindow  int
	SupportsVision bool
}

// RetryPolicy is the shared backoff policy every provider adapter uses for
// transient failures (rate limits, 5xx, timeouts, connection resets).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches models.FailoverRules' implicit defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Retry runs op, retrying with linear backoff (BaseDelay * attempt) while
// isRetryable(err) holds, up to MaxAttempts. It stops immediately on ctx
// cancellation.
func (p RetryPolicy) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt >= maxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// Registry resolves a project's configured provider name to a Provider
// instance. Adapters register themselves via Register during init() or
// explicit wiring in cmd/nexus-core.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its Name(). Re-registering a name replaces
// the previous entry, which is convenient for tests that install fakes.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name, or nil if none is.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
