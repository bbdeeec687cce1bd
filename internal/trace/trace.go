// Package trace builds an ExecutionTrace incrementally as the Agent Runner
// drives a turn, then persists it atomically once at finalize -- the same
// shape as internal/agent/trace.go's TracePlugin, generalized from a
// streaming JSONL writer to an in-memory builder with a single Store.Persist
// call on completion, since ExecutionTrace is a repository-backed record
// rather than a standalone replay file.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// Store persists finalized traces and looks them up by id or session.
// internal/store's Postgres-backed repository is expected to satisfy this;
// MemoryStore below satisfies it for tests and for running without a
// database.
type Store interface {
	Persist(ctx context.Context, t *models.ExecutionTrace) error
	Get(ctx context.Context, id string) (*models.ExecutionTrace, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.ExecutionTrace, error)
}

// Recorder accumulates one ExecutionTrace's events and totals as a turn
// runs, then persists the finished trace exactly once. A Recorder is not
// safe for concurrent use by multiple goroutines at once -- the Agent
// Runner only ever touches it from the single goroutine driving a turn.
type Recorder struct {
	mu    sync.Mutex
	trace *models.ExecutionTrace
	seq   uint64
	start time.Time
	now   func() time.Time
	store Store
}

// NewRecorder opens a new trace for one Agent Runner invocation. store may
// be nil, in which case Finalize only builds the in-memory trace and skips
// persistence -- useful for tests that only care about the returned trace.
func NewRecorder(store Store, id, projectID, sessionID string, promptSnapshot models.PromptSnapshot, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Recorder{
		store: store,
		now:   now,
		start: start,
		trace: &models.ExecutionTrace{
			ID:             id,
			ProjectID:      projectID,
			SessionID:      sessionID,
			PromptSnapshot: promptSnapshot,
			Status:         models.TraceRunning,
			CreatedAt:      start,
		},
	}
}

// ID returns the trace's identifier, fixed at construction.
func (r *Recorder) ID() string {
	return r.trace.ID
}

// Emit appends ev to the trace with a monotonically increasing Seq and the
// current time, and returns the stamped copy.
func (r *Recorder) Emit(ev models.TraceEvent) models.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.Seq = r.seq
	ev.Time = r.now()
	r.trace.Events = append(r.trace.Events, ev)
	return ev
}

// SetTurnCount records how many CALL_LLM iterations the turn has used so
// far. Overwritten on every iteration rather than incremented, since the
// runner already tracks the authoritative loop counter.
func (r *Recorder) SetTurnCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.TurnCount = n
}

// AddUsage accumulates tokens and cost onto the trace's running totals.
func (r *Recorder) AddUsage(tokens int, costUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.TotalTokensUsed += tokens
	r.trace.TotalCostUSD += costUSD
}

// Snapshot returns a shallow copy of the trace as it stands right now, safe
// to read without racing further Emit/Finalize calls.
func (r *Recorder) Snapshot() *models.ExecutionTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.trace
	cp.Events = append([]models.TraceEvent{}, r.trace.Events...)
	return &cp
}

// Finalize sets the trace's terminal status and duration, then persists it
// once through Store, if one was configured. A persist error is returned
// alongside the finalized trace -- the caller decides whether a failed
// write to the trace store should fail the turn it describes; the turn's
// own outcome (the error Run returns) is never derived from it.
func (r *Recorder) Finalize(ctx context.Context, status models.TraceStatus) (*models.ExecutionTrace, error) {
	r.mu.Lock()
	completedAt := r.now()
	r.trace.Status = status
	r.trace.CompletedAt = &completedAt
	r.trace.TotalDurationMs = completedAt.Sub(r.start).Milliseconds()
	snap := *r.trace
	snap.Events = append([]models.TraceEvent{}, r.trace.Events...)
	r.mu.Unlock()

	if r.store == nil {
		return &snap, nil
	}
	if err := r.store.Persist(ctx, &snap); err != nil {
		return &snap, err
	}
	return &snap, nil
}
