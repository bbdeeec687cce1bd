package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// OpenAIProvider adapts OpenAI's chat completion streaming API onto the
// Provider contract.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	retry        RetryPolicy
}

// OpenAIConfig configures a new OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Retry        RetryPolicy
}

// NewOpenAIProvider builds an OpenAIProvider. APIKey is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		retry:        cfg.Retry,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SupportsToolUse() bool { return true }

func (p *OpenAIProvider) GetContextWindow() int { return 128000 }

func (p *OpenAIProvider) CountTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func (p *OpenAIProvider) FormatTools(defs []ToolDef) (json.RawMessage, error) {
	return json.Marshal(convertOpenAITools(defs))
}

func (p *OpenAIProvider) FormatToolResult(result ToolResultInput) (json.RawMessage, error) {
	return json.Marshal(openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result.Content,
		ToolCallID: result.ToolCallID,
	})
}

// Chat streams one completion, folding OpenAI's indexed tool_call deltas
// into complete ToolUseStart/Delta/End events as each index finishes.
func (p *OpenAIProvider) Chat(ctx context.Context, params ChatParams) (<-chan ChatEvent, error) {
	model := params.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := convertOpenAIMessages(params.Messages, params.SystemPrompt)
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if params.Temperature > 0 {
		req.Temperature = float32(params.Temperature)
	}
	if len(params.StopSequences) > 0 {
		req.Stop = params.StopSequences
	}
	if len(params.Tools) > 0 {
		req.Tools = convertOpenAITools(params.Tools)
	}

	events := make(chan ChatEvent, 16)

	go func() {
		defer close(events)

		var stream *openai.ChatCompletionStream
		err := p.retry.Retry(ctx, isOpenAIRetryable, func() error {
			s, err := p.client.CreateChatCompletionStream(ctx, req)
			if err != nil {
				return err
			}
			stream = s
			return nil
		})
		if err != nil {
			events <- ChatEvent{Type: EventError, Err: wrapOpenAIError(err, model)}
			return
		}
		defer stream.Close()

		events <- ChatEvent{Type: EventMessageStart}
		processOpenAIStream(ctx, stream, events)
	}()

	return events, nil
}

func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- ChatEvent) {
	type building struct {
		id, name string
		args     strings.Builder
		started  bool
	}
	toolCalls := map[int]*building{}
	usage := Usage{}

	for {
		select {
		case <-ctx.Done():
			events <- ChatEvent{Type: EventError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				events <- ChatEvent{Type: EventMessageEnd, StopReason: StopEndTurn, Usage: usage}
				return
			}
			events <- ChatEvent{Type: EventError, Err: err}
			return
		}
		if resp.Usage != nil {
			usage = Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			events <- ChatEvent{Type: EventContentDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			b, ok := toolCalls[index]
			if !ok {
				b = &building{}
				toolCalls[index] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if !b.started && b.id != "" && b.name != "" {
				b.started = true
				events <- ChatEvent{Type: EventToolUseStart, ToolUseID: b.id, ToolUseName: b.name}
			}
			if tc.Function.Arguments != "" {
				b.args.WriteString(tc.Function.Arguments)
				events <- ChatEvent{Type: EventToolUseDelta, ToolUseID: b.id, PartialInput: tc.Function.Arguments}
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			for _, b := range toolCalls {
				raw := b.args.String()
				if raw == "" {
					raw = "{}"
				}
				events <- ChatEvent{Type: EventToolUseEnd, ToolUseID: b.id, ToolUseName: b.name, ToolUseInput: json.RawMessage(raw)}
			}
			events <- ChatEvent{Type: EventMessageEnd, StopReason: StopToolUse, Usage: usage}
			return
		}
		if choice.FinishReason == openai.FinishReasonLength {
			events <- ChatEvent{Type: EventMessageEnd, StopReason: StopMaxTokens, Usage: usage}
			return
		}
	}
}

func convertOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, msg)
		case "tool":
			for _, tr := range m.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return result
}

func convertOpenAITools(defs []ToolDef) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		var params any
		_ = json.Unmarshal(d.InputSchema, &params)
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func isOpenAIRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "connection reset")
}

func wrapOpenAIError(err error, model string) error {
	return nexuserr.Wrap(nexuserr.CodeProviderError, fmt.Sprintf("openai chat failed (model=%s)", model), err).
		WithContext("provider", "openai", "model", model)
}
