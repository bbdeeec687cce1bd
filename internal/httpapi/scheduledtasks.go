package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// cronParser accepts the same standard-plus-seconds-optional expressions
// internal/scheduler.Scheduler evaluates tasks with.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type createScheduledTaskRequest struct {
	Name               string                      `json:"name" binding:"required"`
	CronExpression     string                      `json:"cron_expression" binding:"required"`
	TaskPayload        models.ScheduledTaskPayload `json:"task_payload"`
	MaxRetries         int                         `json:"max_retries"`
	TimeoutMs          int                         `json:"timeout_ms"`
	BudgetPerRunUSD    float64                     `json:"budget_per_run_usd"`
	MaxDurationMinutes int                         `json:"max_duration_minutes"`
	MaxTurns           int                         `json:"max_turns"`
	MaxRuns            *int                        `json:"max_runs,omitempty"`
}

// listScheduledTasks handles GET /projects/:pid/scheduled-tasks.
func (s *Server) listScheduledTasks(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	tasks, err := s.ScheduledTasks.ListByProject(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, tasks)
}

// createScheduledTask handles POST /projects/:pid/scheduled-tasks. Tasks
// created through this route are static and active immediately; there is no
// approval step since a human authored the request directly.
func (s *Server) createScheduledTask(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}

	var req createScheduledTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	schedule, err := cronParser.Parse(req.CronExpression)
	if err != nil {
		badRequest(c, "invalid cron expression: "+err.Error())
		return
	}

	next := schedule.Next(s.now().UTC())
	task := &models.ScheduledTask{
		ID:                 uuid.NewString(),
		ProjectID:          pid,
		Name:               req.Name,
		CronExpression:     req.CronExpression,
		TaskPayload:        req.TaskPayload,
		Origin:             models.TaskOriginStatic,
		Status:             models.TaskActive,
		MaxRetries:         req.MaxRetries,
		TimeoutMs:          req.TimeoutMs,
		BudgetPerRunUSD:    req.BudgetPerRunUSD,
		MaxDurationMinutes: req.MaxDurationMinutes,
		MaxTurns:           req.MaxTurns,
		MaxRuns:            req.MaxRuns,
		NextRunAt:          &next,
	}
	if err := s.ScheduledTasks.Create(c.Request.Context(), task); err != nil {
		fail(c, err)
		return
	}
	ok(c, 201, task)
}

// approveScheduledTask handles POST /scheduled-tasks/:id/approve, moving an
// agent-proposed task from proposed to active and seeding its first firing.
func (s *Server) approveScheduledTask(c *gin.Context) {
	task, okTask := s.loadScheduledTask(c)
	if !okTask {
		return
	}
	if task.Status != models.TaskProposed {
		badRequest(c, "task is not awaiting approval")
		return
	}

	schedule, err := cronParser.Parse(task.CronExpression)
	if err != nil {
		fail(c, err)
		return
	}
	next := schedule.Next(s.now().UTC())
	task.Status = models.TaskActive
	task.NextRunAt = &next

	if err := s.ScheduledTasks.UpdateTask(c.Request.Context(), task); err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, task)
}

// pauseScheduledTask handles POST /scheduled-tasks/:id/pause.
func (s *Server) pauseScheduledTask(c *gin.Context) {
	task, okTask := s.loadScheduledTask(c)
	if !okTask {
		return
	}
	task.Status = models.TaskPaused
	task.NextRunAt = nil

	if err := s.ScheduledTasks.UpdateTask(c.Request.Context(), task); err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, task)
}

func (s *Server) loadScheduledTask(c *gin.Context) (*models.ScheduledTask, bool) {
	id := c.Param("id")
	task, err := s.ScheduledTasks.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if task == nil {
		fail(c, errNotFound)
		return nil, false
	}
	return task, true
}
