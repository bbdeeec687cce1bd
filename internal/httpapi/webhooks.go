package httpapi

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/internal/webhook"
	"github.com/nexuscore/nexus-core/pkg/models"
)

type createWebhookRequest struct {
	ProjectID     string   `json:"project_id" binding:"required"`
	AgentID       string   `json:"agent_id"`
	Name          string   `json:"name" binding:"required"`
	TriggerPrompt string   `json:"trigger_prompt" binding:"required"`
	SecretEnvVar  string   `json:"secret_env_var"`
	AllowedIPs    []string `json:"allowed_ips,omitempty"`
}

// createWebhook handles POST /webhooks.
func (s *Server) createWebhook(c *gin.Context) {
	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	hook := &models.Webhook{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		AgentID:       req.AgentID,
		Name:          req.Name,
		TriggerPrompt: req.TriggerPrompt,
		SecretEnvVar:  req.SecretEnvVar,
		AllowedIPs:    req.AllowedIPs,
		Status:        models.WebhookActive,
	}
	if err := s.Webhooks.Create(c.Request.Context(), hook); err != nil {
		fail(c, err)
		return
	}
	ok(c, 201, hook)
}

// triggerWebhook handles POST /trigger/:webhookId, the inbound delivery
// endpoint external services POST to. The rejection order (missing, paused,
// IP, signature) is enforced inside webhook.Processor.Process.
func (s *Server) triggerWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[toLowerHeader(name)] = values[0]
		}
	}

	result, err := s.WebhookProc.Process(c.Request.Context(), webhook.Event{
		WebhookID:  c.Param("webhookId"),
		Payload:    body,
		Headers:    headers,
		SourceIP:   c.ClientIP(),
		ReceivedAt: s.now(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	if !result.Success {
		ok(c, 502, result)
		return
	}
	ok(c, 200, result)
}

// testWebhook handles POST /projects/:pid/webhooks/:id/test: it expands the
// webhook's trigger template against a caller-supplied sample payload
// without running the agent, so operators can preview prompt substitution
// before wiring a real delivery.
func (s *Server) testWebhook(c *gin.Context) {
	if _, okParam := requireProjectID(c); !okParam {
		return
	}

	hook, err := s.Webhooks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if hook == nil {
		fail(c, errNotFound)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	ok(c, 200, gin.H{
		"expanded_prompt": webhook.ExpandTemplate(hook.TriggerPrompt, payload),
	})
}

func toLowerHeader(name string) string {
	b := []byte(name)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + ('a' - 'A')
		}
	}
	return string(b)
}
