package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store, used by tests and any
// single-process deployment that doesn't need durable task state.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*models.ScheduledTask
	runs  map[string]*models.ScheduledTaskRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*models.ScheduledTask),
		runs:  make(map[string]*models.ScheduledTaskRun),
	}
}

// PutTask seeds or replaces a task, for test setup.
func (s *MemoryStore) PutTask(task *models.ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

func (s *MemoryStore) Task(id string) *models.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

func (s *MemoryStore) Run(id string) *models.ScheduledTaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *MemoryStore) DueTasks(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledTask
	for _, task := range s.tasks {
		if task.Status != models.TaskActive {
			continue
		}
		if task.NextRunAt == nil || task.NextRunAt.After(now) {
			continue
		}
		due = append(due, task)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) ClaimTask(ctx context.Context, taskID string, prevLastRunAt *time.Time, claimedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return false, nil
	}
	if !sameTime(task.LastRunAt, prevLastRunAt) {
		return false, nil
	}
	// Mark a sentinel claim time immediately so a concurrent ClaimTask in
	// the same tick sees a changed LastRunAt and loses the race; advanceTask
	// overwrites it with the authoritative firing time once the run
	// actually completes.
	claimed := claimedAt.UTC()
	task.LastRunAt = &claimed
	return true, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *models.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.ScheduledTaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.ScheduledTaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
