package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexuscore/nexus-core/internal/approval"
	"github.com/nexuscore/nexus-core/internal/costguard"
	"github.com/nexuscore/nexus-core/internal/inbound"
	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/prompt"
	"github.com/nexuscore/nexus-core/internal/providers"
	"github.com/nexuscore/nexus-core/internal/secrets"
	"github.com/nexuscore/nexus-core/internal/tools"
	"github.com/nexuscore/nexus-core/internal/trace"
	"github.com/nexuscore/nexus-core/internal/webhook"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// ProjectStore is the project CRUD surface this package needs.
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	List(ctx context.Context, limit, offset int) ([]*models.Project, error)
}

// PromptLayerStore is the layer versioning/activation surface this package
// needs, beyond the bare prompt.LayerStore the Assembler uses internally.
type PromptLayerStore interface {
	Create(ctx context.Context, layer *models.PromptLayer) error
	GetByID(ctx context.Context, layerID string) (*models.PromptLayer, error)
	Activate(ctx context.Context, layerID string) error
	GetActive(ctx context.Context, projectID string, layerType models.PromptLayerType) (*models.PromptLayer, error)
	ListVersions(ctx context.Context, projectID string, layerType models.PromptLayerType) ([]*models.PromptLayer, error)
}

// SessionStore is the session browsing surface this package needs.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Session, error)
}

// MessageStore supplies a session's turn history.
type MessageStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

// ScheduledTaskStore is the task CRUD surface this package needs, beyond the
// bare scheduler.Store the Scheduler uses internally.
type ScheduledTaskStore interface {
	Create(ctx context.Context, task *models.ScheduledTask) error
	Get(ctx context.Context, id string) (*models.ScheduledTask, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.ScheduledTask, error)
	UpdateTask(ctx context.Context, task *models.ScheduledTask) error
}

// WebhookStore is the webhook CRUD surface this package needs, beyond the
// bare webhook.WebhookStore the Processor uses internally.
type WebhookStore interface {
	Create(ctx context.Context, hook *models.Webhook) error
	Get(ctx context.Context, webhookID string) (*models.Webhook, error)
	Update(ctx context.Context, hook *models.Webhook) error
	ListByProject(ctx context.Context, projectID string) ([]*models.Webhook, error)
}

// Server holds every collaborator the HTTP surface dispatches to. None of
// these are optional in a real deployment, but a nil field simply makes the
// routes that depend on it unavailable -- useful for tests that only
// exercise one handler group.
type Server struct {
	Projects       ProjectStore
	PromptLayers   PromptLayerStore
	Sessions       SessionStore
	Messages       MessageStore
	Traces         trace.Store
	Approvals      *approval.Gate
	ScheduledTasks ScheduledTaskStore
	Webhooks       WebhookStore
	WebhookProc    *webhook.Processor
	Secrets        *secrets.Service
	Assembler      *prompt.Assembler
	Inbound        *inbound.Processor

	Providers *providers.Registry
	Tools     *tools.Registry
	Cost      *costguard.Guard

	now func() time.Time
}

// NewServer builds a Server. Callers wire each collaborator explicitly
// (typically from cmd/nexus-core); there is no implicit global state.
func NewServer() *Server {
	return &Server{now: time.Now}
}

// Router mounts every documented route on a fresh gin.Engine, grouped the
// way codeready-toolchain-tarsy's cmd/tarsy/main.go mounts its handlers.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	r.POST("/chat", s.chat)
	r.POST("/chat/stream", s.chatStream)

	r.GET("/projects", s.listProjects)
	r.POST("/projects", s.createProject)
	r.GET("/projects/:id", s.getProject)
	r.PUT("/projects/:id", s.updateProject)

	r.GET("/projects/:pid/prompt-layers", s.listPromptLayers)
	r.POST("/projects/:pid/prompt-layers", s.createPromptLayer)
	r.GET("/projects/:pid/prompt-layers/active", s.getActivePromptLayers)
	r.POST("/prompt-layers/:id/activate", s.activatePromptLayer)

	r.GET("/projects/:pid/sessions", s.listSessions)
	r.GET("/sessions/:id/messages", s.listMessages)

	r.GET("/traces/:id", s.getTrace)

	r.GET("/approvals", s.listApprovals)
	r.POST("/approvals/:id/resolve", s.resolveApproval)

	r.GET("/projects/:pid/scheduled-tasks", s.listScheduledTasks)
	r.POST("/projects/:pid/scheduled-tasks", s.createScheduledTask)
	r.POST("/scheduled-tasks/:id/approve", s.approveScheduledTask)
	r.POST("/scheduled-tasks/:id/pause", s.pauseScheduledTask)

	r.POST("/inbound/:channel", s.receiveInbound)

	r.POST("/webhooks", s.createWebhook)
	r.POST("/trigger/:webhookId", s.triggerWebhook)
	r.POST("/projects/:pid/webhooks/:id/test", s.testWebhook)

	r.GET("/projects/:pid/secrets", s.listSecrets)
	r.POST("/projects/:pid/secrets", s.setSecret)
	r.GET("/projects/:pid/secrets/:key", s.getSecretMetadata)
	r.DELETE("/projects/:pid/secrets/:key", s.deleteSecret)

	return r
}

func (s *Server) health(c *gin.Context) {
	ok(c, 200, gin.H{"status": "ok"})
}

// requireProjectID extracts the :pid path param or fails the request.
func requireProjectID(c *gin.Context) (string, bool) {
	pid := c.Param("pid")
	if pid == "" {
		badRequest(c, "project id is required")
		return "", false
	}
	return pid, true
}

var errNotFound = nexuserr.New(nexuserr.CodeNotFound, "resource not found")
