package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// AnthropicProvider adapts Anthropic's Messages API streaming events onto
// the Provider contract.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retry        RetryPolicy
}

// AnthropicConfig configures a new AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Retry        RetryPolicy
}

// NewAnthropicProvider builds an AnthropicProvider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		retry:        cfg.Retry,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SupportsToolUse() bool { return true }

func (p *AnthropicProvider) GetContextWindow() int { return 200000 }

// CountTokens estimates token count locally (roughly 4 characters per
// token); the Messages API does not expose a free local tokenizer, and an
// API round trip per call would defeat the purpose of a pre-flight estimate.
func (p *AnthropicProvider) CountTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Input)
		}
		for _, tr := range m.ToolResults {
			chars += len(tr.Content)
		}
	}
	return chars / 4
}

func (p *AnthropicProvider) FormatTools(defs []ToolDef) (json.RawMessage, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
			return nil, nexuserr.Wrap(nexuserr.CodeValidation, "invalid tool schema for "+d.Name, err)
		}
		tools = append(tools, anthropic.ToolUnionParamOfTool(schema, d.Name))
	}
	return json.Marshal(tools)
}

func (p *AnthropicProvider) FormatToolResult(result ToolResultInput) (json.RawMessage, error) {
	block := anthropic.NewToolResultBlock(result.ToolCallID, result.Content, result.IsError)
	return json.Marshal(block)
}

// Chat streams one completion. A single goroutine reads Anthropic's SSE
// stream and translates each event into the vendor-neutral ChatEvent union;
// partial tool-input JSON is accumulated as local goroutine state and is
// never shared across calls.
func (p *AnthropicProvider) Chat(ctx context.Context, params ChatParams) (<-chan ChatEvent, error) {
	model := params.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := convertMessages(params.Messages)
	if err != nil {
		return nil, err
	}

	events := make(chan ChatEvent, 16)

	go func() {
		defer close(events)

		var streamErr error
		attempt := func() error {
			req := anthropic.MessageNewParams{
				Model:     anthropic.Model(model),
				MaxTokens: int64(maxTokens),
				Messages:  messages,
			}
			if params.SystemPrompt != "" {
				req.System = []anthropic.TextBlockParam{{Text: params.SystemPrompt}}
			}
			if len(params.StopSequences) > 0 {
				req.StopSequences = params.StopSequences
			}
			if params.Temperature > 0 {
				req.Temperature = anthropic.Float(params.Temperature)
			}
			if len(params.Tools) > 0 {
				tools, terr := convertTools(params.Tools)
				if terr != nil {
					return terr
				}
				req.Tools = tools
			}

			stream := p.client.Messages.NewStreaming(ctx, req)
			return processAnthropicStream(stream, events, model)
		}

		streamErr = p.retry.Retry(ctx, isAnthropicRetryable, attempt)
		if streamErr != nil {
			events <- ChatEvent{Type: EventError, Err: wrapAnthropicError(streamErr, model)}
		}
	}()

	return events, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return nil, nexuserr.Wrap(nexuserr.CodeValidation, "invalid tool call input", err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			// Tool-role messages are folded into the preceding user turn as
			// tool_result blocks by the Agent Runner before this point; a
			// bare "tool" message here is treated as plain user content.
			if m.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return result, nil
}

func convertTools(defs []ToolDef) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
			return nil, nexuserr.Wrap(nexuserr.CodeValidation, "invalid tool schema for "+d.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(d.Description)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func processAnthropicStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, events chan<- ChatEvent, model string) error {
	toolInputBuf := map[int]*strings.Builder{}
	toolIDByIndex := map[int]string{}
	toolNameByIndex := map[int]string{}

	for stream.Next() {
		evt := stream.Current()
		switch evt.Type {
		case "message_start":
			events <- ChatEvent{Type: EventMessageStart, MessageID: evt.Message.ID}
		case "content_block_start":
			if tu := evt.ContentBlock.AsToolUse(); tu.ID != "" {
				toolIDByIndex[int(evt.Index)] = tu.ID
				toolNameByIndex[int(evt.Index)] = tu.Name
				toolInputBuf[int(evt.Index)] = &strings.Builder{}
				events <- ChatEvent{Type: EventToolUseStart, ToolUseID: tu.ID, ToolUseName: tu.Name}
			}
		case "content_block_delta":
			delta := evt.Delta
			if text := delta.Text; text != "" {
				events <- ChatEvent{Type: EventContentDelta, Text: text}
			}
			if partial := delta.PartialJSON; partial != "" {
				if buf, ok := toolInputBuf[int(evt.Index)]; ok {
					buf.WriteString(partial)
				}
				events <- ChatEvent{
					Type:         EventToolUseDelta,
					ToolUseID:    toolIDByIndex[int(evt.Index)],
					PartialInput: partial,
				}
			}
		case "content_block_stop":
			if buf, ok := toolInputBuf[int(evt.Index)]; ok {
				raw := buf.String()
				if raw == "" {
					raw = "{}"
				}
				events <- ChatEvent{
					Type:         EventToolUseEnd,
					ToolUseID:    toolIDByIndex[int(evt.Index)],
					ToolUseName:  toolNameByIndex[int(evt.Index)],
					ToolUseInput: json.RawMessage(raw),
				}
				delete(toolInputBuf, int(evt.Index))
			}
		case "message_delta":
			if reason := string(evt.Delta.StopReason); reason != "" {
				events <- ChatEvent{
					Type:       EventMessageEnd,
					StopReason: mapStopReason(reason),
					Usage: Usage{
						InputTokens:  int(evt.Usage.InputTokens),
						OutputTokens: int(evt.Usage.OutputTokens),
					},
				}
			}
		}
	}
	return stream.Err()
}

func mapStopReason(vendor string) StopReason {
	switch vendor {
	case "end_turn", "stop_sequence":
		if vendor == "stop_sequence" {
			return StopStopSequence
		}
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

func isAnthropicRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "timeout")
}

func wrapAnthropicError(err error, model string) error {
	return nexuserr.Wrap(nexuserr.CodeProviderError, fmt.Sprintf("anthropic chat failed (model=%s)", model), err).
		WithContext("provider", "anthropic", "model", model, "retry_delay", time.Second.String())
}
