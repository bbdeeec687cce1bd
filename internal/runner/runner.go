// Package runner implements the Agent Runner (C9): the per-turn state
// machine that drives a conversation through the provider, tool registry,
// cost guard, and approval gate, emitting an ExecutionTrace as it goes.
//
// This is a fresh implementation, not an adaptation of
// internal/agent/loop.go -- it keeps that file's phase-enum-plus-streamed-
// event idiom but rebuilds the state machine around the spec's
// INIT -> LOAD_CONTEXT -> PRECHECK_COST -> CALL_LLM -> (EXECUTE_TOOLS ->
// CALL_LLM)* -> PERSIST -> DONE contract rather than the teacher's
// MaxIterations/ExecutorConfig/JobStore-shaped LoopConfig.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/approval"
	"github.com/nexuscore/nexus-core/internal/costguard"
	"github.com/nexuscore/nexus-core/internal/memory"
	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/providers"
	"github.com/nexuscore/nexus-core/internal/tools"
	"github.com/nexuscore/nexus-core/internal/trace"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// DefaultApprovalPollInterval is how often a suspended turn re-checks
// IsApproved while waiting on a human decision, absent async notification.
const DefaultApprovalPollInterval = 2 * time.Second

// DefaultMaxTurnsPerSession bounds turns per Run invocation when a
// project's CostConfig leaves MaxTurnsPerSession unset.
const DefaultMaxTurnsPerSession = 25

// Params are the inputs to one Agent Runner invocation.
type Params struct {
	ProjectID           string
	SessionID           string
	Message             string
	ConversationHistory []*models.Message
	SystemPrompt        string
	PromptSnapshot      models.PromptSnapshot
	AgentConfig         models.AgentConfig
}

// Result is what Run returns: the finalized trace plus the full message
// history as of however the turn ended. On success Messages includes the
// new user message, every assistant/tool-result message pair from each
// iteration, and the final assistant reply. On cancellation or failure
// mid-stream, Messages holds only what was already durable before the
// failure -- no partial assistant message is ever included.
type Result struct {
	Trace    *models.ExecutionTrace
	Messages []*models.Message
}

// Deps are the collaborators a Runner drives. Provider and Tools are
// required; Cost and Approval may be supplied pre-wired per project.
type Deps struct {
	Provider             providers.Provider
	Tools                *tools.Registry
	Cost                 *costguard.Guard
	Approval             *approval.Gate
	TraceStore           trace.Store // nil skips persistence, keeping only the in-memory trace
	TokenCounter         memory.TokenCounter
	ApprovalPollInterval time.Duration
}

// Runner drives one turn loop at a time per instance; callers that need
// per-session serialization hold their own session mutex around Run (see
// the concurrency model in SPEC_FULL.md §5).
type Runner struct {
	deps Deps
	now  func() time.Time
}

// New creates a Runner from deps, filling in defaults for optional fields.
func New(deps Deps) *Runner {
	if deps.ApprovalPollInterval <= 0 {
		deps.ApprovalPollInterval = DefaultApprovalPollInterval
	}
	if deps.TokenCounter == nil {
		deps.TokenCounter = memory.DefaultTokenCounter
	}
	return &Runner{deps: deps, now: time.Now}
}

type pendingToolCall struct {
	id, name string
	input    json.RawMessage
}

// Run executes INIT through DONE for one turn, looping CALL_LLM and
// EXECUTE_TOOLS until the provider reports end_turn/max_tokens, the turn
// count exceeds the project's MaxTurnsPerSession, the context is canceled,
// or an unrecoverable error occurs.
func (r *Runner) Run(ctx context.Context, params Params) (*Result, error) {
	if params.ProjectID == "" {
		return nil, fmt.Errorf("runner: projectID is required")
	}
	if params.SessionID == "" {
		return nil, fmt.Errorf("runner: sessionID is required")
	}
	if r.deps.Provider == nil {
		return nil, fmt.Errorf("runner: no provider configured")
	}

	traceID := uuid.NewString()
	rec := trace.NewRecorder(r.deps.TraceStore, traceID, params.ProjectID, params.SessionID, params.PromptSnapshot, r.now)
	emit := func(ev models.TraceEvent) { rec.Emit(ev) }
	finalize := func(ctx context.Context, status models.TraceStatus) *Result {
		finalized, _ := rec.Finalize(ctx, status)
		return &Result{Trace: finalized}
	}

	messages := append([]*models.Message{}, params.ConversationHistory...)
	messages = append(messages, &models.Message{
		ID:        uuid.NewString(),
		SessionID: params.SessionID,
		Role:      models.RoleUser,
		Content:   params.Message,
		TraceID:   traceID,
		CreatedAt: r.now(),
	})

	cfg := params.AgentConfig
	maxTurns := cfg.Cost.MaxTurnsPerSession
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurnsPerSession
	}

	for turn := 1; ; turn++ {
		rec.SetTurnCount(turn)
		if turn > maxTurns {
			emit(models.TraceEvent{Type: models.EventError, Error: "max turns per session exceeded"})
			result := finalize(ctx, models.TraceMaxTurns)
			result.Messages = messages
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			emit(models.TraceEvent{Type: models.EventError, Error: err.Error()})
			result := finalize(ctx, models.TraceFailed)
			result.Messages = messages
			return result, err
		}

		contextWindow := cfg.Memory.ContextWindowSize
		if contextWindow <= 0 {
			contextWindow = r.deps.Provider.GetContextWindow()
		}
		fitted, _, estimatedTokens := memory.FitToContextWindow(messages, r.deps.TokenCounter, contextWindow, cfg.Memory.ReserveTokens)
		messages = fitted

		precheck, err := r.deps.Cost.Precheck(ctx, params.ProjectID, cfg.Cost, costguard.PrecheckRequest{
			PlannedTokens: estimatedTokens,
			Provider:      cfg.Provider.Provider,
			Model:         cfg.Provider.Model,
		})
		if err != nil {
			emit(models.TraceEvent{Type: models.EventError, Error: err.Error()})
			result := finalize(ctx, models.TraceFailed)
			result.Messages = messages
			return result, err
		}
		if !precheck.Allow {
			emit(models.TraceEvent{Type: models.EventError, Error: precheck.Reason})
			result := finalize(ctx, models.TraceFailed)
			result.Messages = messages
			return result, nexuserr.New(nexuserr.CodeBudgetExceeded, precheck.Reason)
		}

		assistantText, toolCalls, usage, stopReason, streamErr := r.callLLM(ctx, params, cfg, messages, precheck, traceID)
		if streamErr != nil {
			emit(models.TraceEvent{Type: models.EventError, Error: streamErr.Error()})
			result := finalize(ctx, models.TraceFailed)
			result.Messages = messages
			return result, streamErr
		}

		record := models.UsageRecord{
			ProjectID:        params.ProjectID,
			SessionID:        params.SessionID,
			TraceID:          traceID,
			Provider:         cfg.Provider.Provider,
			Model:            cfg.Provider.Model,
			InputTokens:      usage.InputTokens,
			OutputTokens:     usage.OutputTokens,
			CacheReadTokens:  usage.CacheReadTokens,
			CacheWriteTokens: usage.CacheWriteTokens,
			Timestamp:        r.now(),
		}
		pricing := costguard.ResolvePricing(cfg.Provider.Provider, cfg.Provider.Model)
		record.CostUSD = costguard.EstimateCostUSD(usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, pricing)
		if _, err := r.deps.Cost.RecordUsage(ctx, params.ProjectID, cfg.Cost, record); err != nil {
			emit(models.TraceEvent{Type: models.EventError, Error: err.Error()})
			result := finalize(ctx, models.TraceFailed)
			result.Messages = messages
			return result, err
		}
		rec.AddUsage(usage.InputTokens+usage.OutputTokens, record.CostUSD)

		responseEvent := models.TraceEvent{
			Type: models.EventLLMResponse,
			Text: assistantText,
			Usage: &models.Usage{
				InputTokens:      usage.InputTokens,
				OutputTokens:     usage.OutputTokens,
				CacheReadTokens:  usage.CacheReadTokens,
				CacheWriteTokens: usage.CacheWriteTokens,
			},
		}
		if stopReason == providers.StopMaxTokens {
			responseEvent.Error = "truncated: response stopped at max_tokens"
		}
		emit(responseEvent)

		if stopReason != providers.StopToolUse {
			messages = append(messages, &models.Message{
				ID:        uuid.NewString(),
				SessionID: params.SessionID,
				Role:      models.RoleAssistant,
				Content:   assistantText,
				TraceID:   traceID,
				CreatedAt: r.now(),
				Usage:     responseEvent.Usage,
			})
			result := finalize(ctx, models.TraceCompleted)
			result.Messages = messages
			return result, nil
		}

		assistantMsg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: params.SessionID,
			Role:      models.RoleAssistant,
			Content:   assistantText,
			TraceID:   traceID,
			CreatedAt: r.now(),
			Usage:     responseEvent.Usage,
		}
		for _, tc := range toolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, models.ToolCall{ID: tc.id, Name: tc.name, Input: tc.input})
		}
		messages = append(messages, assistantMsg)

		toolResults := r.executeTools(ctx, params, cfg, traceID, toolCalls, emit)
		messages = append(messages, &models.Message{
			ID:          uuid.NewString(),
			SessionID:   params.SessionID,
			Role:        models.RoleTool,
			ToolResults: toolResults,
			TraceID:     traceID,
			CreatedAt:   r.now(),
		})
	}
}

// callLLM opens a provider stream and drains it into the accumulated
// assistant text, the turn's tool calls in declaration order, the
// terminal usage/stopReason, and any stream-level error.
func (r *Runner) callLLM(ctx context.Context, params Params, cfg models.AgentConfig, messages []*models.Message, precheck *costguard.PrecheckResult, traceID string) (string, []pendingToolCall, providers.Usage, providers.StopReason, error) {
	events, err := r.deps.Provider.Chat(ctx, providers.ChatParams{
		Messages:     toProviderMessages(messages),
		Tools:        r.toolDefs(cfg.AllowedTools),
		SystemPrompt: params.SystemPrompt,
		Model:        cfg.Provider.Model,
		MaxTokens:    precheck.MaxTokensPerTurn,
		Temperature:  cfg.Provider.Temperature,
		TraceID:      traceID,
	})
	if err != nil {
		return "", nil, providers.Usage{}, "", err
	}

	var assistantText strings.Builder
	var toolCalls []pendingToolCall
	toolInputs := make(map[string]*strings.Builder)
	var stopReason providers.StopReason
	var usage providers.Usage

	for {
		select {
		case <-ctx.Done():
			return assistantText.String(), toolCalls, usage, stopReason, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return assistantText.String(), toolCalls, usage, stopReason, nil
			}
			switch ev.Type {
			case providers.EventContentDelta:
				assistantText.WriteString(ev.Text)
			case providers.EventToolUseStart:
				toolInputs[ev.ToolUseID] = &strings.Builder{}
				toolCalls = append(toolCalls, pendingToolCall{id: ev.ToolUseID, name: ev.ToolUseName})
			case providers.EventToolUseDelta:
				if b, ok := toolInputs[ev.ToolUseID]; ok {
					b.WriteString(ev.PartialInput)
				}
			case providers.EventToolUseEnd:
				if len(ev.ToolUseInput) > 0 {
					for i := range toolCalls {
						if toolCalls[i].id == ev.ToolUseID {
							toolCalls[i].input = ev.ToolUseInput
						}
					}
				}
			case providers.EventMessageEnd:
				stopReason = ev.StopReason
				usage = ev.Usage
			case providers.EventError:
				return assistantText.String(), toolCalls, usage, stopReason, ev.Err
			}
		}
	}
}

// executeTools runs each tool call in declaration order, never in parallel,
// so the provider's tool_use/tool_result pairing order is preserved. A
// thrown tool error becomes an isError tool_result; it never aborts the
// turn.
func (r *Runner) executeTools(ctx context.Context, params Params, cfg models.AgentConfig, traceID string, calls []pendingToolCall, emit func(models.TraceEvent)) []models.ToolResult {
	permissions := tools.Permissions{AllowedTools: cfg.AllowedTools}
	results := make([]models.ToolResult, 0, len(calls))

	for _, tc := range calls {
		input := tc.input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		emit(models.TraceEvent{Type: models.EventToolCall, ToolCallID: tc.id, ToolID: tc.name, Input: string(input)})

		if !permissions.Allows(tc.name) {
			results = append(results, models.ToolResult{ToolCallID: tc.id, Content: "tool not in allowedTools", IsError: true})
			emit(models.TraceEvent{Type: models.EventToolResult, ToolCallID: tc.id, ToolID: tc.name, IsError: true, Output: string(nexuserr.CodeToolNotAllowed)})
			continue
		}

		tool, registered := r.deps.Tools.GetByID(tc.name)
		riskLevel := models.RiskLow
		requiresApproval := false
		if registered {
			riskLevel = tool.RiskLevel()
			requiresApproval = tool.RequiresApproval()
		}

		if requiresApproval || riskLevel == models.RiskHigh || riskLevel == models.RiskCritical {
			emit(models.TraceEvent{Type: models.EventApprovalWait, ToolCallID: tc.id, ToolID: tc.name})
			approved, err := r.awaitApproval(ctx, params, tc, input, riskLevel)
			if err != nil {
				results = append(results, models.ToolResult{ToolCallID: tc.id, Content: err.Error(), IsError: true})
				emit(models.TraceEvent{Type: models.EventToolResult, ToolCallID: tc.id, ToolID: tc.name, IsError: true, Output: err.Error()})
				continue
			}
			if !approved {
				results = append(results, models.ToolResult{ToolCallID: tc.id, Content: "tool call denied or expired", IsError: true})
				emit(models.TraceEvent{Type: models.EventToolResult, ToolCallID: tc.id, ToolID: tc.name, IsError: true, Output: string(nexuserr.CodeApprovalDenied)})
				continue
			}
		}

		ec := tools.ExecutionContext{
			ProjectID:   params.ProjectID,
			SessionID:   params.SessionID,
			TraceID:     traceID,
			AgentConfig: cfg,
			Permissions: permissions,
			AbortSignal: ctx,
		}
		result, execErr := r.deps.Tools.Execute(ctx, tc.name, ec, input)
		isError := execErr != nil || !result.Success
		content := resultContent(result, execErr)
		results = append(results, models.ToolResult{ToolCallID: tc.id, Content: content, IsError: isError})
		emit(models.TraceEvent{Type: models.EventToolResult, ToolCallID: tc.id, ToolID: tc.name, Output: content, IsError: isError})
	}

	return results
}

// awaitApproval opens an ApprovalRequest and polls IsApproved until a
// decision lands, the request expires, or ctx is canceled.
func (r *Runner) awaitApproval(ctx context.Context, params Params, tc pendingToolCall, input json.RawMessage, risk models.RiskLevel) (bool, error) {
	if r.deps.Approval == nil {
		return false, fmt.Errorf("runner: tool %q requires approval but no approval gate is configured", tc.name)
	}

	req, err := r.deps.Approval.RequestApproval(ctx, approval.RequestParams{
		ProjectID:  params.ProjectID,
		SessionID:  params.SessionID,
		ToolCallID: tc.id,
		ToolID:     tc.name,
		ToolInput:  input,
		RiskLevel:  risk,
	})
	if err != nil {
		return false, err
	}

	ticker := time.NewTicker(r.deps.ApprovalPollInterval)
	defer ticker.Stop()

	for {
		current, err := r.deps.Approval.Get(ctx, req.ID)
		if err != nil {
			return false, err
		}
		switch current.Status {
		case models.ApprovalApproved:
			return true, nil
		case models.ApprovalDenied, models.ApprovalExpired:
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) toolDefs(allowedTools []string) []providers.ToolDef {
	allowed := r.deps.Tools.ListAllowed(allowedTools)
	defs := make([]providers.ToolDef, 0, len(allowed))
	for _, t := range allowed {
		defs = append(defs, providers.ToolDef{
			Name:        t.ID(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

func toProviderMessages(messages []*models.Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		pm := providers.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, providers.ToolCallInput{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		for _, tr := range m.ToolResults {
			pm.ToolResults = append(pm.ToolResults, providers.ToolResultInput{ToolCallID: tr.ToolCallID, Content: tr.Content, IsError: tr.IsError})
		}
		out = append(out, pm)
	}
	return out
}

func resultContent(result tools.Result, execErr error) string {
	if execErr != nil {
		return execErr.Error()
	}
	if result.Error != "" {
		return result.Error
	}
	if result.Output == nil {
		return ""
	}
	if s, ok := result.Output.(string); ok {
		return s
	}
	encoded, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Sprintf("%v", result.Output)
	}
	return string(encoded)
}
