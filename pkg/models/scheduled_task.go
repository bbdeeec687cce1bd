package models

import "time"

// ScheduledTaskOrigin indicates who created a ScheduledTask.
type ScheduledTaskOrigin string

const (
	TaskOriginStatic        ScheduledTaskOrigin = "static"
	TaskOriginAgentProposed ScheduledTaskOrigin = "agent_proposed"
)

// ScheduledTaskStatus is the lifecycle state of a ScheduledTask.
type ScheduledTaskStatus string

const (
	TaskProposed ScheduledTaskStatus = "proposed"
	TaskActive   ScheduledTaskStatus = "active"
	TaskPaused   ScheduledTaskStatus = "paused"
	TaskRejected ScheduledTaskStatus = "rejected"
	TaskCompleted ScheduledTaskStatus = "completed"
	TaskExpired  ScheduledTaskStatus = "expired"
)

// ScheduledTaskPayload carries the message the scheduler feeds to the Agent
// Runner as the synthesized user turn.
type ScheduledTaskPayload struct {
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// ScheduledTask is a cron-evaluated dispatch unit. NextRunAt always reflects
// the next UTC firing time of Cron given LastRunAt; it is recomputed when
// Status transitions to active and after every run.
type ScheduledTask struct {
	ID                 string               `json:"id"`
	ProjectID          string               `json:"project_id"`
	Name               string               `json:"name"`
	CronExpression     string               `json:"cron_expression"`
	TaskPayload        ScheduledTaskPayload `json:"task_payload"`
	Origin             ScheduledTaskOrigin  `json:"origin"`
	Status             ScheduledTaskStatus  `json:"status"`
	MaxRetries         int                  `json:"max_retries"`
	TimeoutMs          int                  `json:"timeout_ms"`
	BudgetPerRunUSD    float64              `json:"budget_per_run_usd"`
	MaxDurationMinutes int                  `json:"max_duration_minutes"`
	MaxTurns           int                  `json:"max_turns"`
	MaxRuns            *int                 `json:"max_runs,omitempty"`
	RunCount           int                  `json:"run_count"`
	LastRunAt          *time.Time           `json:"last_run_at,omitempty"`
	NextRunAt          *time.Time           `json:"next_run_at,omitempty"`
	ExpiresAt          *time.Time           `json:"expires_at,omitempty"`
}

// ScheduledTaskRunStatus is the lifecycle state of one firing of a task.
type ScheduledTaskRunStatus string

const (
	RunPending        ScheduledTaskRunStatus = "pending"
	RunRunning        ScheduledTaskRunStatus = "running"
	RunCompleted      ScheduledTaskRunStatus = "completed"
	RunFailed         ScheduledTaskRunStatus = "failed"
	RunTimeout        ScheduledTaskRunStatus = "timeout"
	RunBudgetExceeded ScheduledTaskRunStatus = "budget_exceeded"
)

// ScheduledTaskRun is the per-firing record of a ScheduledTask.
type ScheduledTaskRun struct {
	ID           string                 `json:"id"`
	TaskID       string                 `json:"task_id"`
	Status       ScheduledTaskRunStatus `json:"status"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	DurationMs   int64                  `json:"duration_ms,omitempty"`
	TokensUsed   int                    `json:"tokens_used,omitempty"`
	CostUSD      float64                `json:"cost_usd,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
	Result       string                 `json:"result,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RetryCount   int                    `json:"retry_count"`
}
