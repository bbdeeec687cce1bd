// Package scheduler implements the Scheduler (C12): a single-process
// dispatcher loop that ticks over due ScheduledTasks, claims each with an
// optimistic CAS to prevent double-dispatch across replicas, and invokes the
// Agent Runner with a synthesized session. Grounded on
// internal/tasks/scheduler.go's poll-loop-plus-worker-pool shape and
// internal/cron's robfig/cron UTC evaluation, generalized from that file's
// pending-execution-queue-per-attempt model to the spec's single
// ScheduledTaskRun-per-firing record with an in-place RetryCount.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// cronParser accepts standard 5-field and seconds-optional 6-field cron
// expressions, same configuration internal/tasks/scheduler.go uses.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// DefaultTickInterval is how often the dispatcher loop queries for due
// tasks, matching spec §4.12's default.
const DefaultTickInterval = 10 * time.Second

// DefaultMaxConcurrency bounds cross-project concurrent task runs.
const DefaultMaxConcurrency = 5

// DefaultBaseBackoff is the base of the exponential retry backoff
// (base * 2^(attempt-1)).
const DefaultBaseBackoff = 2 * time.Second

// Store is the persistence boundary the Scheduler drives. DueTasks must
// return tasks with status=active and nextRunAt<=now, ordered by nextRunAt
// ascending, per spec §5's ordering guarantee.
type Store interface {
	DueTasks(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTask, error)
	// ClaimTask performs the CAS described in spec §4.12: it succeeds only
	// if the task's persisted LastRunAt still equals prevLastRunAt,
	// preventing two replicas from dispatching the same firing.
	ClaimTask(ctx context.Context, taskID string, prevLastRunAt *time.Time, claimedAt time.Time) (bool, error)
	UpdateTask(ctx context.Context, task *models.ScheduledTask) error
	CreateRun(ctx context.Context, run *models.ScheduledTaskRun) error
	UpdateRun(ctx context.Context, run *models.ScheduledTaskRun) error
}

// AgentConfigResolver resolves the AgentConfig a scheduled task's project
// runs under -- the scheduler has no project of its own to read from.
type AgentConfigResolver interface {
	AgentConfig(ctx context.Context, projectID string) (models.AgentConfig, error)
}

// Runner drives one Agent Runner turn. *runner.Runner satisfies this.
type Runner interface {
	Run(ctx context.Context, params runner.Params) (*runner.Result, error)
}

// Config tunes the dispatcher loop.
type Config struct {
	TickInterval   time.Duration
	MaxConcurrency int
	BaseBackoff    time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:   DefaultTickInterval,
		MaxConcurrency: DefaultMaxConcurrency,
		BaseBackoff:    DefaultBaseBackoff,
	}
}

// Scheduler runs the tick loop described in spec §4.12.
type Scheduler struct {
	store    Store
	agents   AgentConfigResolver
	runner   Runner
	cfg      Config
	logger   *slog.Logger
	sem      chan struct{}
	projects *keyedMutex
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Scheduler, filling unset Config fields with defaults.
func New(store Store, agents AgentConfigResolver, r Runner, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "scheduler")
	}
	return &Scheduler{
		store:    store,
		agents:   agents,
		runner:   r,
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		projects: newKeyedMutex(),
		now:      time.Now,
	}
}

// Start launches the tick loop in the background. It is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop cancels the tick loop and waits for in-flight runs to finish or ctx
// to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick queries for due tasks and dispatches each one that can be claimed.
// Exported so tests and a manually-driven caller (e.g. a cron-triggered
// serverless invocation) can drive one pass without the background loop.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	tasks, err := s.store.DueTasks(ctx, now, 100)
	if err != nil {
		s.logger.Error("scheduler: failed to list due tasks", "error", err)
		return
	}

	for _, task := range tasks {
		claimed, err := s.store.ClaimTask(ctx, task.ID, task.LastRunAt, now)
		if err != nil {
			s.logger.Error("scheduler: claim failed", "task_id", task.ID, "error", err)
			continue
		}
		if !claimed {
			continue // another replica (or a concurrent tick) already took it
		}

		select {
		case s.sem <- struct{}{}:
		default:
			// At capacity this tick; the task stays claimed with its
			// nextRunAt already advanced by dispatch(), so it simply
			// fires again next period once a worker frees up would be
			// wrong -- instead run synchronously inline, bounded by the
			// caller's ctx, rather than drop a claimed firing.
			s.dispatch(ctx, task, now)
			continue
		}

		s.wg.Add(1)
		go func(task *models.ScheduledTask) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.dispatch(ctx, task, now)
		}(task)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, task *models.ScheduledTask, now time.Time) {
	release := s.projects.lock(task.ProjectID)
	defer release()

	run := &models.ScheduledTaskRun{ID: uuid.NewString(), TaskID: task.ID, Status: models.RunPending}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.logger.Error("scheduler: failed to create run", "task_id", task.ID, "error", err)
	}

	s.execute(ctx, task, run)

	if err := s.advanceTask(ctx, task, now); err != nil {
		s.logger.Error("scheduler: failed to advance task", "task_id", task.ID, "error", err)
	}
}

// execute runs the task's payload through the Agent Runner, retrying
// transient failures up to task.MaxRetries with exponential backoff, and
// writes the terminal ScheduledTaskRun.
func (s *Scheduler) execute(ctx context.Context, task *models.ScheduledTask, run *models.ScheduledTaskRun) {
	started := s.now()
	run.Status = models.RunRunning
	run.StartedAt = &started
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.Error("scheduler: failed to mark run running", "run_id", run.ID, "error", err)
	}

	timeout := time.Duration(task.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := s.agents.AgentConfig(execCtx, task.ProjectID)
	if err != nil {
		s.finishRun(ctx, run, models.RunFailed, nil, err)
		return
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		ProjectID: task.ProjectID,
		Status:    models.SessionActive,
		Metadata:  map[string]any{"source": "schedule", "taskId": task.ID},
		CreatedAt: started,
	}
	params := runner.Params{
		ProjectID:   task.ProjectID,
		SessionID:   session.ID,
		Message:     task.TaskPayload.Message,
		AgentConfig: cfg,
	}

	var result *runner.Result
	var runErr error
	for attempt := 0; ; attempt++ {
		result, runErr = s.runner.Run(execCtx, params)
		if runErr == nil || !isRetryable(runErr) || attempt >= task.MaxRetries {
			break
		}
		run.RetryCount = attempt + 1
		backoff := s.cfg.BaseBackoff << attempt
		select {
		case <-execCtx.Done():
			runErr = execCtx.Err()
			goto done
		case <-time.After(backoff):
		}
	}
done:

	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		s.finishRun(ctx, run, models.RunTimeout, result, execCtx.Err())
	case runErr != nil:
		s.finishRun(ctx, run, models.RunFailed, result, runErr)
	case task.BudgetPerRunUSD > 0 && result.Trace != nil && result.Trace.TotalCostUSD > task.BudgetPerRunUSD:
		s.finishRun(ctx, run, models.RunBudgetExceeded, result, nil)
	default:
		s.finishRun(ctx, run, models.RunCompleted, result, nil)
	}
}

func (s *Scheduler) finishRun(ctx context.Context, run *models.ScheduledTaskRun, status models.ScheduledTaskRunStatus, result *runner.Result, runErr error) {
	completed := s.now()
	run.Status = status
	run.CompletedAt = &completed
	if run.StartedAt != nil {
		run.DurationMs = completed.Sub(*run.StartedAt).Milliseconds()
	}
	if result != nil && result.Trace != nil {
		run.TokensUsed = result.Trace.TotalTokensUsed
		run.CostUSD = result.Trace.TotalCostUSD
		run.TraceID = result.Trace.ID
	}
	if result != nil {
		run.Result = lastAssistantText(result.Messages)
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.Error("scheduler: failed to persist final run state", "run_id", run.ID, "error", err)
	}
}

// advanceTask records the firing and recomputes nextRunAt from the cron
// expression, evaluated in UTC. Status moves to completed once maxRuns is
// reached, or expired once expiresAt has passed.
func (s *Scheduler) advanceTask(ctx context.Context, task *models.ScheduledTask, now time.Time) error {
	nowUTC := now.UTC()
	task.LastRunAt = &nowUTC
	task.RunCount++

	if task.MaxRuns != nil && task.RunCount >= *task.MaxRuns {
		task.Status = models.TaskCompleted
		task.NextRunAt = nil
		return s.store.UpdateTask(ctx, task)
	}
	if task.ExpiresAt != nil && nowUTC.After(*task.ExpiresAt) {
		task.Status = models.TaskExpired
		task.NextRunAt = nil
		return s.store.UpdateTask(ctx, task)
	}

	schedule, err := cronParser.Parse(task.CronExpression)
	if err != nil {
		s.logger.Error("scheduler: invalid cron expression, pausing task", "task_id", task.ID, "error", err)
		task.Status = models.TaskPaused
		task.NextRunAt = nil
		return s.store.UpdateTask(ctx, task)
	}
	next := schedule.Next(nowUTC)
	task.NextRunAt = &next

	return s.store.UpdateTask(ctx, task)
}

// isRetryable treats everything except validation/authorization/budget
// failures as a transient provider or infrastructure error worth retrying,
// matching spec §7's retryable-vs-fatal split for provider errors.
func isRetryable(err error) bool {
	switch nexuserr.CodeOf(err) {
	case nexuserr.CodeValidation, nexuserr.CodeNotFound, nexuserr.CodeUnauthorized,
		nexuserr.CodeForbidden, nexuserr.CodeBudgetExceeded, nexuserr.CodeToolNotAllowed,
		nexuserr.CodeApprovalDenied:
		return false
	default:
		return true
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
