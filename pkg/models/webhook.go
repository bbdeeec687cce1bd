package models

// WebhookStatus is the lifecycle state of a Webhook.
type WebhookStatus string

const (
	WebhookActive WebhookStatus = "active"
	WebhookPaused WebhookStatus = "paused"
)

// Webhook configures one inbound trigger endpoint for a project.
type Webhook struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	AgentID       string        `json:"agent_id,omitempty"`
	Name          string        `json:"name"`
	TriggerPrompt string        `json:"trigger_prompt"`
	SecretEnvVar  string        `json:"secret_env_var,omitempty"`
	AllowedIPs    []string      `json:"allowed_ips,omitempty"`
	Status        WebhookStatus `json:"status"`
}
