// Package webhook implements the Webhook Processor & Queue (C13): a
// synchronous HTTP-trigger-to-agent-turn pipeline, and an async queue
// variant for callers that want to return 202 immediately. Signature
// verification is grounded on internal/channels/nextcloudtalk/adapter.go's
// verifySignature (hmac.New(sha256.New, secret) + hmac.Equal), generalized
// from that adapter's single-scheme check to the spec's three accepted
// header names and the GitHub-style "sha256=" prefix.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// signatureHeaders lists the header names checked, in priority order, for
// an inbound HMAC signature.
var signatureHeaders = []string{"x-webhook-signature", "x-hub-signature-256", "x-signature"}

// Event is one inbound HTTP delivery to a webhook endpoint.
type Event struct {
	WebhookID  string
	Payload    []byte
	Headers    map[string]string // lower-cased header names
	SourceIP   string
	ReceivedAt time.Time
}

// Result is the synchronous outcome of processing one Event.
type Result struct {
	Success    bool
	SessionID  string
	Response   string
	Error      string
	DurationMs int64
}

// WebhookStore resolves a Webhook and its bound agent config by id.
type WebhookStore interface {
	Get(ctx context.Context, webhookID string) (*models.Webhook, error)
}

// AgentConfigResolver resolves the AgentConfig a webhook's project runs
// under -- the processor has no project of its own to read from.
type AgentConfigResolver interface {
	AgentConfig(ctx context.Context, projectID, agentID string) (models.AgentConfig, error)
}

// SecretResolver resolves the value of a named environment variable a
// webhook's secretEnvVar points at. In production this is backed by
// internal/secrets; tests can stub it directly.
type SecretResolver interface {
	Resolve(ctx context.Context, envVar string) (string, error)
}

// SessionStore creates the session a webhook-triggered turn runs in.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
}

// Runner drives one Agent Runner turn. *runner.Runner satisfies this.
type Runner interface {
	Run(ctx context.Context, params runner.Params) (*runner.Result, error)
}

// Processor implements spec §4.13's synchronous webhook pipeline.
type Processor struct {
	Webhooks WebhookStore
	Agents   AgentConfigResolver
	Secrets  SecretResolver
	Sessions SessionStore
	Runner   Runner
	now      func() time.Time
}

func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

func (p *Processor) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// Process implements the rejection order spec §4.13 documents: missing (404)
// → paused (503) → ip not allowed (403) → signature required-and-mismatched
// (401) → run the agent.
func (p *Processor) Process(ctx context.Context, event Event) (*Result, error) {
	started := p.clock()

	hook, err := p.Webhooks.Get(ctx, event.WebhookID)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeNotFound, "webhook not found", err)
	}
	if hook == nil {
		return nil, nexuserr.New(nexuserr.CodeNotFound, "webhook not found")
	}
	if hook.Status == models.WebhookPaused {
		return nil, nexuserr.New(nexuserr.CodeForbidden, "webhook is paused")
	}
	if len(hook.AllowedIPs) > 0 && !ipAllowed(event.SourceIP, hook.AllowedIPs) {
		return nil, nexuserr.New(nexuserr.CodeForbidden, "source ip not allowed")
	}
	if hook.SecretEnvVar != "" {
		if err := p.verifySignature(ctx, hook, event); err != nil {
			return nil, err
		}
	}

	prompt := ExpandTemplate(hook.TriggerPrompt, event.Payload)

	cfg, err := p.Agents.AgentConfig(ctx, hook.ProjectID, hook.AgentID)
	if err != nil {
		return result(started, p.clock(), false, "", "", err.Error()), nil
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		ProjectID: hook.ProjectID,
		Status:    models.SessionActive,
		Metadata:  map[string]any{"source": "webhook", "webhookId": hook.ID},
		CreatedAt: started,
	}
	if p.Sessions != nil {
		if err := p.Sessions.Create(ctx, session); err != nil {
			return result(started, p.clock(), false, "", "", err.Error()), nil
		}
	}

	runResult, err := p.Runner.Run(ctx, runner.Params{
		ProjectID:   hook.ProjectID,
		SessionID:   session.ID,
		Message:     prompt,
		AgentConfig: cfg,
	})
	if err != nil {
		return result(started, p.clock(), false, session.ID, "", err.Error()), nil
	}

	return result(started, p.clock(), true, session.ID, lastAssistantText(runResult.Messages), ""), nil
}

func (p *Processor) verifySignature(ctx context.Context, hook *models.Webhook, event Event) error {
	var signature string
	for _, h := range signatureHeaders {
		if v, ok := event.Headers[h]; ok && v != "" {
			signature = v
			break
		}
	}
	if signature == "" {
		return nexuserr.New(nexuserr.CodeUnauthorized, "missing webhook signature")
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	secret, err := p.Secrets.Resolve(ctx, hook.SecretEnvVar)
	if err != nil {
		return nexuserr.Wrap(nexuserr.CodeUnauthorized, "webhook secret unavailable", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(event.Payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nexuserr.New(nexuserr.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

func ipAllowed(sourceIP string, allowed []string) bool {
	if sourceIP == "" {
		return false
	}
	ip := net.ParseIP(sourceIP)
	for _, a := range allowed {
		if a == sourceIP {
			return true
		}
		if _, cidr, err := net.ParseCIDR(a); err == nil && ip != nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func result(started, completed time.Time, success bool, sessionID, response, errMsg string) *Result {
	return &Result{
		Success:    success,
		SessionID:  sessionID,
		Response:   response,
		Error:      errMsg,
		DurationMs: completed.Sub(started).Milliseconds(),
	}
}

func lastAssistantText(messages []*models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}
