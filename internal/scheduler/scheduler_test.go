package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/pkg/models"
)

type stubRunner struct {
	results []*runner.Result
	errs    []error
	calls   int
}

func (s *stubRunner) Run(ctx context.Context, params runner.Params) (*runner.Result, error) {
	i := s.calls
	s.calls++
	var res *runner.Result
	var err error
	if i < len(s.results) {
		res = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

func okTraceResult(cost float64) *runner.Result {
	return &runner.Result{
		Trace: &models.ExecutionTrace{ID: "trace-1", Status: models.TraceCompleted, TotalCostUSD: cost, TotalTokensUsed: 100},
		Messages: []*models.Message{
			{Role: models.RoleAssistant, Content: "done"},
		},
	}
}

type stubResolver struct {
	cfg models.AgentConfig
}

func (r *stubResolver) AgentConfig(ctx context.Context, projectID string) (models.AgentConfig, error) {
	return r.cfg, nil
}

func testAgentConfig() models.AgentConfig {
	return models.AgentConfig{
		Provider: models.ProviderSpec{Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
		Cost:     models.DefaultCostConfig(),
	}
}

func baseTask(id string, nextRunAt time.Time) *models.ScheduledTask {
	return &models.ScheduledTask{
		ID:             id,
		ProjectID:      "proj-1",
		Name:           "daily digest",
		CronExpression: "0 9 * * *",
		TaskPayload:    models.ScheduledTaskPayload{Message: "send the digest"},
		Origin:         models.TaskOriginStatic,
		Status:         models.TaskActive,
		MaxRetries:     2,
		TimeoutMs:      60000,
		NextRunAt:      &nextRunAt,
	}
}

func TestTick_DispatchesDueTaskAndAdvancesNextRunAt(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(-time.Minute))
	store.PutTask(task)

	r := &stubRunner{results: []*runner.Result{okTraceResult(0.01)}}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	updated := store.Task("task-1")
	if updated.RunCount != 1 {
		t.Fatalf("RunCount = %d, want 1", updated.RunCount)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(now) {
		t.Fatalf("expected NextRunAt to be recomputed after firing, got %v", updated.NextRunAt)
	}
	if updated.Status != models.TaskActive {
		t.Fatalf("Status = %q, want active", updated.Status)
	}
}

func TestTick_ClaimPreventsDoubleDispatch(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(-time.Minute))
	store.PutTask(task)

	claimed, err := store.ClaimTask(context.Background(), "task-1", nil, now)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, got claimed=%v err=%v", claimed, err)
	}

	claimedAgain, err := store.ClaimTask(context.Background(), "task-1", nil, now)
	if err != nil {
		t.Fatalf("ClaimTask error: %v", err)
	}
	if claimedAgain {
		t.Fatal("expected second claim against the stale LastRunAt to fail")
	}
}

func TestExecute_BudgetExceededMarksRunBudgetExceeded(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(-time.Minute))
	task.BudgetPerRunUSD = 0.05
	store.PutTask(task)

	r := &stubRunner{results: []*runner.Result{okTraceResult(1.00)}}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	var found *models.ScheduledTaskRun
	for _, run := range store.runs {
		found = run
	}
	if found == nil {
		t.Fatal("expected a run to be recorded")
	}
	if found.Status != models.RunBudgetExceeded {
		t.Errorf("run status = %q, want budget_exceeded", found.Status)
	}
}

func TestExecute_RetriesRetryableErrorThenSucceeds(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(-time.Minute))
	task.MaxRetries = 2
	store.PutTask(task)

	r := &stubRunner{
		results: []*runner.Result{nil, okTraceResult(0.01)},
		errs:    []error{nexuserr.New(nexuserr.CodeProviderError, "rate limited"), nil},
	}
	cfg := DefaultConfig()
	cfg.BaseBackoff = time.Millisecond
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, cfg)
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	if r.calls != 2 {
		t.Fatalf("expected runner to be called twice (1 retry), got %d", r.calls)
	}
	var found *models.ScheduledTaskRun
	for _, run := range store.runs {
		found = run
	}
	if found.Status != models.RunCompleted {
		t.Errorf("run status = %q, want completed", found.Status)
	}
	if found.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", found.RetryCount)
	}
}

func TestExecute_NonRetryableErrorFailsWithoutRetry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(-time.Minute))
	store.PutTask(task)

	r := &stubRunner{errs: []error{nexuserr.New(nexuserr.CodeValidation, "bad input")}}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	if r.calls != 1 {
		t.Fatalf("expected no retry on a validation error, got %d calls", r.calls)
	}
	var found *models.ScheduledTaskRun
	for _, run := range store.runs {
		found = run
	}
	if found.Status != models.RunFailed {
		t.Errorf("run status = %q, want failed", found.Status)
	}
}

func TestAdvanceTask_MaxRunsCompletesTask(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	maxRuns := 1
	task := baseTask("task-1", now.Add(-time.Minute))
	task.MaxRuns = &maxRuns
	store.PutTask(task)

	r := &stubRunner{results: []*runner.Result{okTraceResult(0.01)}}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	updated := store.Task("task-1")
	if updated.Status != models.TaskCompleted {
		t.Errorf("Status = %q, want completed", updated.Status)
	}
	if updated.NextRunAt != nil {
		t.Errorf("expected NextRunAt to be cleared, got %v", updated.NextRunAt)
	}
}

func TestAdvanceTask_ExpiresAtPastExpiresTask(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	expiresAt := now.Add(-time.Hour)
	task := baseTask("task-1", now.Add(-time.Minute))
	task.ExpiresAt = &expiresAt
	store.PutTask(task)

	r := &stubRunner{results: []*runner.Result{okTraceResult(0.01)}}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	updated := store.Task("task-1")
	if updated.Status != models.TaskExpired {
		t.Errorf("Status = %q, want expired", updated.Status)
	}
}

func TestTick_IgnoresTasksNotYetDue(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	task := baseTask("task-1", now.Add(time.Hour))
	store.PutTask(task)

	r := &stubRunner{}
	sched := New(store, &stubResolver{cfg: testAgentConfig()}, r, DefaultConfig())
	sched.now = func() time.Time { return now }

	sched.Tick(context.Background())

	if r.calls != 0 {
		t.Errorf("expected no dispatch for a task not yet due, got %d calls", r.calls)
	}
}
