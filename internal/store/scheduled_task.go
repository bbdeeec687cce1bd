package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// ScheduledTaskStore persists cron-evaluated dispatch units and their per-
// firing run records. Satisfies internal/scheduler.Store.
type ScheduledTaskStore struct {
	db *sql.DB
}

func NewScheduledTaskStore(db *sql.DB) *ScheduledTaskStore { return &ScheduledTaskStore{db: db} }

// Create inserts a new task, proposed or active depending on Origin --
// static tasks created through the HTTP surface are active immediately;
// agent-proposed tasks are created in TaskProposed until an operator
// approves them via UpdateTask.
func (s *ScheduledTaskStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	payload, err := json.Marshal(task.TaskPayload)
	if err != nil {
		return fmt.Errorf("store: marshal task payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks
		 (id, project_id, name, cron_expression, task_payload, origin, status, max_retries,
		  timeout_ms, budget_per_run_usd, max_duration_minutes, max_turns, max_runs, run_count,
		  last_run_at, next_run_at, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		task.ID, task.ProjectID, task.Name, task.CronExpression, payload, task.Origin, task.Status,
		task.MaxRetries, task.TimeoutMs, task.BudgetPerRunUSD, task.MaxDurationMinutes, task.MaxTurns,
		task.MaxRuns, task.RunCount, task.LastRunAt, task.NextRunAt, task.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: create scheduled task: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when id is unknown.
func (s *ScheduledTaskStore) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, cron_expression, task_payload, origin, status, max_retries,
		        timeout_ms, budget_per_run_usd, max_duration_minutes, max_turns, max_runs, run_count,
		        last_run_at, next_run_at, expires_at
		 FROM scheduled_tasks WHERE id=$1`, id)
	task, err := scanScheduledTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get scheduled task: %w", err)
	}
	return task, nil
}

func (s *ScheduledTaskStore) ListByProject(ctx context.Context, projectID string) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, cron_expression, task_payload, origin, status, max_retries,
		        timeout_ms, budget_per_run_usd, max_duration_minutes, max_turns, max_runs, run_count,
		        last_run_at, next_run_at, expires_at
		 FROM scheduled_tasks WHERE project_id=$1 ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledTask
	for rows.Next() {
		task, err := scanScheduledTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan scheduled task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// DueTasks returns up to limit active tasks whose NextRunAt has arrived,
// ordered so the oldest-due task is claimed first.
func (s *ScheduledTaskStore) DueTasks(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, cron_expression, task_payload, origin, status, max_retries,
		        timeout_ms, budget_per_run_usd, max_duration_minutes, max_turns, max_runs, run_count,
		        last_run_at, next_run_at, expires_at
		 FROM scheduled_tasks
		 WHERE status='active' AND next_run_at IS NOT NULL AND next_run_at <= $1
		 ORDER BY next_run_at ASC LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query due tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledTask
	for rows.Next() {
		task, err := scanScheduledTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan scheduled task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// ClaimTask performs the compare-and-set that prevents two ticks (or two
// scheduler replicas) from dispatching the same firing: the update only
// applies if last_run_at still matches prevLastRunAt as read by DueTasks.
func (s *ScheduledTaskStore) ClaimTask(ctx context.Context, taskID string, prevLastRunAt *time.Time, claimedAt time.Time) (bool, error) {
	var res sql.Result
	var err error
	if prevLastRunAt == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_tasks SET last_run_at=$2 WHERE id=$1 AND last_run_at IS NULL`,
			taskID, claimedAt.UTC(),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_tasks SET last_run_at=$3 WHERE id=$1 AND last_run_at=$2`,
			taskID, *prevLastRunAt, claimedAt.UTC(),
		)
	}
	if err != nil {
		return false, fmt.Errorf("store: claim task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim task rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ScheduledTaskStore) UpdateTask(ctx context.Context, task *models.ScheduledTask) error {
	payload, err := json.Marshal(task.TaskPayload)
	if err != nil {
		return fmt.Errorf("store: marshal task payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET
		   name=$2, cron_expression=$3, task_payload=$4, origin=$5, status=$6, max_retries=$7,
		   timeout_ms=$8, budget_per_run_usd=$9, max_duration_minutes=$10, max_turns=$11, max_runs=$12,
		   run_count=$13, last_run_at=$14, next_run_at=$15, expires_at=$16
		 WHERE id=$1`,
		task.ID, task.Name, task.CronExpression, payload, task.Origin, task.Status, task.MaxRetries,
		task.TimeoutMs, task.BudgetPerRunUSD, task.MaxDurationMinutes, task.MaxTurns, task.MaxRuns,
		task.RunCount, task.LastRunAt, task.NextRunAt, task.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: update scheduled task: %w", err)
	}
	return nil
}

func (s *ScheduledTaskStore) CreateRun(ctx context.Context, run *models.ScheduledTaskRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_task_runs
		 (id, task_id, status, started_at, completed_at, duration_ms, tokens_used, cost_usd,
		  trace_id, result, error_message, retry_count)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		run.ID, run.TaskID, run.Status, run.StartedAt, run.CompletedAt, run.DurationMs, run.TokensUsed,
		run.CostUSD, run.TraceID, run.Result, run.ErrorMessage, run.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("store: create task run: %w", err)
	}
	return nil
}

func (s *ScheduledTaskStore) UpdateRun(ctx context.Context, run *models.ScheduledTaskRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_task_runs SET
		   status=$2, started_at=$3, completed_at=$4, duration_ms=$5, tokens_used=$6, cost_usd=$7,
		   trace_id=$8, result=$9, error_message=$10, retry_count=$11
		 WHERE id=$1`,
		run.ID, run.Status, run.StartedAt, run.CompletedAt, run.DurationMs, run.TokensUsed,
		run.CostUSD, run.TraceID, run.Result, run.ErrorMessage, run.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("store: update task run: %w", err)
	}
	return nil
}

func scanScheduledTask(row rowScanner) (*models.ScheduledTask, error) {
	var t models.ScheduledTask
	var payload []byte
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.CronExpression, &payload, &t.Origin, &t.Status,
		&t.MaxRetries, &t.TimeoutMs, &t.BudgetPerRunUSD, &t.MaxDurationMinutes, &t.MaxTurns, &t.MaxRuns,
		&t.RunCount, &t.LastRunAt, &t.NextRunAt, &t.ExpiresAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.TaskPayload); err != nil {
			return nil, fmt.Errorf("unmarshal task payload: %w", err)
		}
	}
	return &t, nil
}
