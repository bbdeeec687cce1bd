package httpapi

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/pkg/models"
)

type chatRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type chatResponse struct {
	SessionID string            `json:"sessionId"`
	TraceID   string            `json:"traceId"`
	Response  string            `json:"response"`
	ToolCalls []models.ToolCall `json:"toolCalls"`
}

// chat handles POST /chat: it resolves the project's agent config and
// active prompt layers, drives one Agent Runner turn, and persists both the
// new session (if none was supplied) and the resulting messages.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	project, err := s.Projects.Get(ctx, req.ProjectID)
	if err != nil {
		fail(c, err)
		return
	}
	if project == nil {
		fail(c, errNotFound)
		return
	}

	session, history, err := s.resolveChatSession(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	snapshot, err := s.Assembler.Assemble(ctx, req.ProjectID)
	if err != nil {
		fail(c, err)
		return
	}

	provider := s.Providers.Get(project.AgentConfig.Provider.Provider)
	if provider == nil {
		fail(c, nexuserr.New(nexuserr.CodeValidation,
			fmt.Sprintf("no provider registered for %q", project.AgentConfig.Provider.Provider)))
		return
	}

	run := runner.New(runner.Deps{
		Provider:   provider,
		Tools:      s.Tools,
		Cost:       s.Cost,
		Approval:   s.Approvals,
		TraceStore: s.Traces,
	})

	result, err := run.Run(ctx, runner.Params{
		ProjectID:           req.ProjectID,
		SessionID:           session.ID,
		Message:             req.Message,
		ConversationHistory: history,
		SystemPrompt:        snapshot.ComposedSystemPrompt,
		PromptSnapshot:      *snapshot,
		AgentConfig:         project.AgentConfig,
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, 200, chatResponse{
		SessionID: session.ID,
		TraceID:   result.Trace.ID,
		Response:  lastAssistantContent(result.Messages),
		ToolCalls: lastAssistantToolCalls(result.Messages),
	})
}

// chatStream handles POST /chat/stream. The Agent Runner's Run method
// returns only the finalized turn, not a live per-token event channel, so
// this forwards the same result as a two-frame SSE stream (one data frame,
// one terminal "done" frame) rather than true token-by-token delivery.
func (s *Server) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	project, err := s.Projects.Get(ctx, req.ProjectID)
	if err != nil {
		fail(c, err)
		return
	}
	if project == nil {
		fail(c, errNotFound)
		return
	}

	session, history, err := s.resolveChatSession(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	snapshot, err := s.Assembler.Assemble(ctx, req.ProjectID)
	if err != nil {
		fail(c, err)
		return
	}

	provider := s.Providers.Get(project.AgentConfig.Provider.Provider)
	if provider == nil {
		fail(c, nexuserr.New(nexuserr.CodeValidation,
			fmt.Sprintf("no provider registered for %q", project.AgentConfig.Provider.Provider)))
		return
	}

	run := runner.New(runner.Deps{
		Provider:   provider,
		Tools:      s.Tools,
		Cost:       s.Cost,
		Approval:   s.Approvals,
		TraceStore: s.Traces,
	})

	result, err := run.Run(ctx, runner.Params{
		ProjectID:           req.ProjectID,
		SessionID:           session.ID,
		Message:             req.Message,
		ConversationHistory: history,
		SystemPrompt:        snapshot.ComposedSystemPrompt,
		PromptSnapshot:      *snapshot,
		AgentConfig:         project.AgentConfig,
	})
	if err != nil {
		c.SSEvent("error", gin.H{"message": err.Error()})
		return
	}

	c.SSEvent("message", chatResponse{
		SessionID: session.ID,
		TraceID:   result.Trace.ID,
		Response:  lastAssistantContent(result.Messages),
		ToolCalls: lastAssistantToolCalls(result.Messages),
	})
	c.SSEvent("done", gin.H{"sessionId": session.ID})
}

// resolveChatSession loads req.SessionID if supplied, else opens a new
// session for req.ProjectID, and returns its prior message history.
func (s *Server) resolveChatSession(ctx context.Context, req chatRequest) (*models.Session, []*models.Message, error) {
	if req.SessionID != "" {
		session, err := s.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("httpapi: load session: %w", err)
		}
		if session == nil {
			return nil, nil, nexuserr.New(nexuserr.CodeNotFound, "session not found")
		}
		history, err := s.Messages.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("httpapi: load session history: %w", err)
		}
		return session, history, nil
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Status:    models.SessionActive,
		CreatedAt: s.now(),
	}
	if err := s.Sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("httpapi: create session: %w", err)
	}
	return session, nil, nil
}

// lastAssistantContent returns the text of the final assistant message in
// messages, or "" if none exists.
func lastAssistantContent(messages []*models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}

// lastAssistantToolCalls returns the tool calls attached to the final
// assistant message in messages, or nil if none exists.
func lastAssistantToolCalls(messages []*models.Message) []models.ToolCall {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i].ToolCalls
		}
	}
	return nil
}
