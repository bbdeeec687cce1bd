package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// BedrockProvider adapts AWS Bedrock's Converse streaming API onto the
// Provider contract.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	retry        RetryPolicy
}

// BedrockConfig configures a new BedrockProvider.
type BedrockConfig struct {
	Region       string
	DefaultModel string
	Retry        RetryPolicy
}

// NewBedrockProvider builds a BedrockProvider using the default AWS
// credential chain for the given region.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		retry:        cfg.Retry,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) SupportsToolUse() bool { return true }

func (p *BedrockProvider) GetContextWindow() int { return 200000 }

func (p *BedrockProvider) CountTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func (p *BedrockProvider) FormatTools(defs []ToolDef) (json.RawMessage, error) {
	return json.Marshal(defs)
}

func (p *BedrockProvider) FormatToolResult(result ToolResultInput) (json.RawMessage, error) {
	return json.Marshal(result)
}

func (p *BedrockProvider) Chat(ctx context.Context, params ChatParams) (<-chan ChatEvent, error) {
	model := params.Model
	if model == "" {
		model = p.defaultModel
	}

	messages, err := convertBedrockMessages(params.Messages)
	if err != nil {
		return nil, err
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if params.SystemPrompt != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: params.SystemPrompt}}
	}
	if params.MaxTokens > 0 {
		maxTokens := params.MaxTokens
		if maxTokens > 1<<20 {
			maxTokens = 1 << 20
		}
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(params.Tools) > 0 {
		req.ToolConfig = convertBedrockTools(params.Tools)
	}

	events := make(chan ChatEvent, 16)

	go func() {
		defer close(events)

		var stream *bedrockruntime.ConverseStreamOutput
		callErr := p.retry.Retry(ctx, isBedrockRetryable, func() error {
			out, err := p.client.ConverseStream(ctx, req)
			if err != nil {
				return err
			}
			stream = out
			return nil
		})
		if callErr != nil {
			events <- ChatEvent{Type: EventError, Err: wrapBedrockError(callErr, model)}
			return
		}

		events <- ChatEvent{Type: EventMessageStart}
		processBedrockStream(ctx, stream, events, model)
	}()

	return events, nil
}

func processBedrockStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, events chan<- ChatEvent, model string) {
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolID, toolName string
	var toolInput strings.Builder
	usage := Usage{}

	for {
		select {
		case <-ctx.Done():
			events <- ChatEvent{Type: EventError, Err: ctx.Err()}
			return
		case ev, ok := <-eventStream.Events():
			if !ok {
				if err := eventStream.Err(); err != nil {
					events <- ChatEvent{Type: EventError, Err: wrapBedrockError(err, model)}
					return
				}
				events <- ChatEvent{Type: EventMessageEnd, StopReason: StopEndTurn, Usage: usage}
				return
			}
			switch e := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID = aws.ToString(tu.Value.ToolUseId)
					toolName = aws.ToString(tu.Value.Name)
					toolInput.Reset()
					events <- ChatEvent{Type: EventToolUseStart, ToolUseID: toolID, ToolUseName: toolName}
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch d := e.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if d.Value != "" {
						events <- ChatEvent{Type: EventContentDelta, Text: d.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if d.Value.Input != nil {
						toolInput.WriteString(*d.Value.Input)
						events <- ChatEvent{Type: EventToolUseDelta, ToolUseID: toolID, PartialInput: *d.Value.Input}
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				if toolID != "" {
					raw := toolInput.String()
					if raw == "" {
						raw = "{}"
					}
					events <- ChatEvent{Type: EventToolUseEnd, ToolUseID: toolID, ToolUseName: toolName, ToolUseInput: json.RawMessage(raw)}
					toolID, toolName = "", ""
					toolInput.Reset()
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if u := e.Value.Usage; u != nil {
					usage = Usage{InputTokens: int(aws.ToInt32(u.InputTokens)), OutputTokens: int(aws.ToInt32(u.OutputTokens))}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				reason := StopEndTurn
				if e.Value.StopReason == types.StopReasonToolUse {
					reason = StopToolUse
				} else if e.Value.StopReason == types.StopReasonMaxTokens {
					reason = StopMaxTokens
				}
				events <- ChatEvent{Type: EventMessageEnd, StopReason: reason, Usage: usage}
				return
			}
		}
	}
}

func convertBedrockMessages(messages []Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			blocks := []types.ContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tr := range m.ToolResults {
				status := types.ToolResultStatusSuccess
				if tr.IsError {
					status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(tr.ToolCallID),
						Status:    status,
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
					},
				})
			}
			if len(blocks) > 0 {
				result = append(result, types.Message{Role: types.ConversationRoleUser, Content: blocks})
			}
		case "assistant":
			blocks := []types.ContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input document.Interface
				if len(tc.Input) > 0 {
					var parsed map[string]any
					if err := json.Unmarshal(tc.Input, &parsed); err != nil {
						return nil, nexuserr.Wrap(nexuserr.CodeValidation, "invalid tool call input", err)
					}
					input = document.NewLazyDocument(parsed)
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: input},
				})
			}
			if len(blocks) > 0 {
				result = append(result, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
			}
		}
	}
	return result, nil
}

func convertBedrockTools(defs []ToolDef) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		_ = json.Unmarshal(d.InputSchema, &schema)
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}
}

func isBedrockRetryable(err error) bool {
	if err == nil {
		return false
	}
	var throttling *types.ThrottlingException
	var serviceUnavailable *types.ServiceUnavailableException
	var internalServer *types.InternalServerException
	return errors.As(err, &throttling) || errors.As(err, &serviceUnavailable) || errors.As(err, &internalServer)
}

func wrapBedrockError(err error, model string) error {
	return nexuserr.Wrap(nexuserr.CodeProviderError, fmt.Sprintf("bedrock chat failed (model=%s)", model), err).
		WithContext("provider", "bedrock", "model", model)
}
