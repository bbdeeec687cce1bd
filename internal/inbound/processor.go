// Package inbound implements the Inbound Processor (C11): the pipeline that
// turns a channel-normalized InboundMessage into a Contact, an active
// Session, a routed agent, an Agent Runner turn, and a reply dispatched back
// through the Channel Resolver. Grounded on internal/channels/registry.go's
// Adapter/OutboundAdapter/HealthAdapter split -- kept as the shape of
// ChannelResolver below -- generalized from that file's push-based
// Messages() channel model to the spec's synchronous
// resolve-contact -> resolve-session -> route-agent -> run-turn -> reply
// pipeline.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/internal/sanitize"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// ContactStore resolves and creates Contacts, keyed per spec by
// (projectID, channel, senderIdentifier).
type ContactStore interface {
	FindByChannel(ctx context.Context, projectID, channel, senderIdentifier string) (*models.Contact, error)
	Create(ctx context.Context, contact *models.Contact) error
}

// SessionStore resolves the most recent non-closed Session for a contact,
// and persists newly created ones.
type SessionStore interface {
	FindActiveByContact(ctx context.Context, projectID, contactID string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
}

// MessageStore supplies prior turns for conversation history. A nil
// MessageStore on Processor is valid -- history is simply empty, which only
// affects continuity, not correctness of a single turn.
type MessageStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

// AgentRouter resolves which agent (and its AgentConfig) should handle a
// contact on a given channel. A nil AgentRouter on Processor means every
// message runs under Processor.DefaultAgent.
type AgentRouter interface {
	Route(ctx context.Context, projectID, channel, contactRole string) (agentID string, cfg models.AgentConfig, err error)
}

// ErrNoRoute is returned by AgentRouter implementations (and surfaced
// unchanged by Processor) when no agent matches and there is no configured
// default.
var ErrNoRoute = fmt.Errorf("inbound: no agent route and no default agent configured")

// ChannelResolver dispatches an assistant reply back onto the channel it
// arrived on, and reports per-channel health. internal/channels.MultiResolver
// satisfies this directly, dispatching by out.Channel across every
// registered per-channel adapter.
type ChannelResolver interface {
	Send(ctx context.Context, out models.OutboundMessage) error
	IsHealthy(channel string) bool
}

// PromptProvider resolves the system prompt for a turn. internal/prompt.Assembler
// satisfies this directly.
type PromptProvider interface {
	Assemble(ctx context.Context, projectID string) (*models.PromptSnapshot, error)
}

// Runner drives one Agent Runner turn. *runner.Runner satisfies this.
type Runner interface {
	Run(ctx context.Context, params runner.Params) (*runner.Result, error)
}

// Result is what Process returns once a turn has completed, whether or not
// the reply dispatch succeeded.
type Result struct {
	ContactID string
	SessionID string
	TraceID   string
	Response  string
	SendErr   error // set if ChannelResolver.Send failed; never rolls back the turn
}

// Processor wires the Inbound Processor's collaborators together. Contacts,
// Sessions, and Channels are required; Messages, Router, and Prompt are
// optional.
type Processor struct {
	Contacts ContactStore
	Sessions SessionStore
	Messages MessageStore
	Router   AgentRouter
	Prompt   PromptProvider
	Channels ChannelResolver
	Runner   Runner

	DefaultAgent models.AgentConfig
	SanitizeOpts sanitize.Options

	now func() time.Time
}

// NewProcessor builds a Processor with sane sanitizer defaults.
func NewProcessor() *Processor {
	return &Processor{SanitizeOpts: sanitize.DefaultOptions(), now: time.Now}
}

// Process runs the full pipeline described in spec §4.11 for one inbound
// message. Agent errors are returned to the caller and no apologetic reply
// is sent; a reply-dispatch failure is reported on Result.SendErr but never
// turns a successful turn into an error, since the conversation is already
// durable by that point.
func (p *Processor) Process(ctx context.Context, msg models.InboundMessage) (*Result, error) {
	if msg.ProjectID == "" || msg.Channel == "" || msg.SenderIdentifier == "" {
		return nil, fmt.Errorf("inbound: projectID, channel, and senderIdentifier are required")
	}
	if p.Contacts == nil || p.Sessions == nil || p.Runner == nil {
		return nil, fmt.Errorf("inbound: Contacts, Sessions, and Runner are required")
	}

	now := p.clock()

	clean, err := sanitize.Sanitize(msg.Content, p.sanitizeOpts())
	if err != nil {
		return nil, fmt.Errorf("inbound: sanitize: %w", err)
	}

	contact, err := p.resolveContact(ctx, msg, now)
	if err != nil {
		return nil, fmt.Errorf("inbound: resolve contact: %w", err)
	}

	session, err := p.resolveSession(ctx, msg, contact, now)
	if err != nil {
		return nil, fmt.Errorf("inbound: resolve session: %w", err)
	}

	agentID, agentCfg, err := p.resolveAgent(ctx, msg, contact)
	if err != nil {
		return nil, fmt.Errorf("inbound: resolve agent: %w", err)
	}
	if agentID != "" && session.MetaAgentID() == "" {
		session.Metadata["agentId"] = agentID
	}

	var history []*models.Message
	if p.Messages != nil {
		history, err = p.Messages.ListBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("inbound: load history: %w", err)
		}
	}

	systemPrompt, snapshot, err := p.assemblePrompt(ctx, msg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("inbound: assemble prompt: %w", err)
	}

	runResult, err := p.Runner.Run(ctx, runner.Params{
		ProjectID:           msg.ProjectID,
		SessionID:           session.ID,
		Message:             clean.Sanitized,
		ConversationHistory: history,
		SystemPrompt:        systemPrompt,
		PromptSnapshot:      snapshot,
		AgentConfig:         agentCfg,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{ContactID: contact.ID, SessionID: session.ID}
	if runResult.Trace != nil {
		result.TraceID = runResult.Trace.ID
	}
	result.Response = lastAssistantText(runResult.Messages)

	if p.Channels != nil {
		result.SendErr = p.Channels.Send(ctx, models.OutboundMessage{
			Channel:             msg.Channel,
			RecipientIdentifier: contact.Identifier(),
			Content:             result.Response,
			InReplyToChannelID:  msg.ChannelMessageID,
		})
	}

	return result, nil
}

func (p *Processor) resolveContact(ctx context.Context, msg models.InboundMessage, now time.Time) (*models.Contact, error) {
	existing, err := p.Contacts.FindByChannel(ctx, msg.ProjectID, msg.Channel, msg.SenderIdentifier)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	contact := &models.Contact{
		ID:         uuid.NewString(),
		ProjectID:  msg.ProjectID,
		ExternalID: msg.SenderIdentifier,
		Name:       msg.SenderName,
	}
	if err := p.Contacts.Create(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (p *Processor) resolveSession(ctx context.Context, msg models.InboundMessage, contact *models.Contact, now time.Time) (*models.Session, error) {
	existing, err := p.Sessions.FindActiveByContact(ctx, msg.ProjectID, contact.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Metadata == nil {
			existing.Metadata = map[string]any{}
		}
		return existing, nil
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		ProjectID: msg.ProjectID,
		Status:    models.SessionActive,
		Metadata: map[string]any{
			"contactId": contact.ID,
			"channel":   msg.Channel,
		},
		CreatedAt: now,
	}
	if err := p.Sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (p *Processor) resolveAgent(ctx context.Context, msg models.InboundMessage, contact *models.Contact) (string, models.AgentConfig, error) {
	if p.Router == nil {
		return "", p.DefaultAgent, nil
	}
	agentID, cfg, err := p.Router.Route(ctx, msg.ProjectID, msg.Channel, contact.Role)
	if err == nil {
		return agentID, cfg, nil
	}
	if errors.Is(err, ErrNoRoute) && p.DefaultAgent.Provider.Model != "" {
		return "", p.DefaultAgent, nil
	}
	return "", models.AgentConfig{}, err
}

func (p *Processor) assemblePrompt(ctx context.Context, projectID string) (string, models.PromptSnapshot, error) {
	if p.Prompt == nil {
		return "", models.PromptSnapshot{}, nil
	}
	snap, err := p.Prompt.Assemble(ctx, projectID)
	if err != nil {
		return "", models.PromptSnapshot{}, err
	}
	return snap.ComposedSystemPrompt, *snap, nil
}

func (p *Processor) sanitizeOpts() sanitize.Options {
	if p.SanitizeOpts == (sanitize.Options{}) {
		return sanitize.DefaultOptions()
	}
	return p.SanitizeOpts
}

func (p *Processor) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func lastAssistantText(messages []*models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}
