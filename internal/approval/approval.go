// Package approval gates high-risk tool calls behind a pending/approved/
// denied workflow: requestApproval opens a record with a TTL, resolve moves
// it to a terminal decision, and isApproved/get/listPending compute
// expiration lazily on every read rather than via a background sweep.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// DefaultTTL is how long a pending request stays open when RequestParams
// doesn't specify one.
const DefaultTTL = 5 * time.Minute

// RequestParams describes a new approval request.
type RequestParams struct {
	ProjectID  string
	SessionID  string
	ToolCallID string
	ToolID     string
	ToolInput  json.RawMessage
	RiskLevel  models.RiskLevel
	TTL        time.Duration // 0 uses DefaultTTL
}

// Store persists approval requests. Implementations must be safe for
// concurrent use. The persistent variant maps 1:1 onto the ApprovalRequest
// table; Store is deliberately narrow so either store can back a Gate.
type Store interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
	Update(ctx context.Context, req *models.ApprovalRequest) error
	ListByProject(ctx context.Context, projectID string) ([]*models.ApprovalRequest, error)
}

// NotifyFunc is invoked after a request is created, for callers that want to
// push pending approvals to an external surface (chat reply, dashboard).
// Errors from Notify are not fatal to RequestApproval.
type NotifyFunc func(ctx context.Context, req *models.ApprovalRequest)

var (
	// ErrNotFound is returned when an approval ID doesn't resolve in the
	// configured store.
	ErrNotFound = fmt.Errorf("approval: request not found")
	// ErrNotPending is returned when Resolve is called on a request that has
	// already reached a terminal state.
	ErrNotPending = fmt.Errorf("approval: request is not pending")
)

// Gate is the Approval Gate: requestApproval/resolve/isApproved/listPending
// backed by a pluggable Store.
type Gate struct {
	mu         sync.RWMutex
	store      Store
	defaultTTL time.Duration
	notify     NotifyFunc
	now        func() time.Time
}

// NewGate creates a Gate backed by store. A nil store is invalid; callers
// that don't need persistence should pass NewMemoryStore().
func NewGate(store Store) *Gate {
	return &Gate{
		store:      store,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
}

// SetNotify installs a callback fired synchronously after a new request is
// persisted.
func (g *Gate) SetNotify(fn NotifyFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notify = fn
}

// RequestApproval creates a pending ApprovalRequest with expiresAt = now + TTL.
func (g *Gate) RequestApproval(ctx context.Context, params RequestParams) (*models.ApprovalRequest, error) {
	if params.ProjectID == "" {
		return nil, fmt.Errorf("approval: projectID is required")
	}
	if params.ToolCallID == "" {
		return nil, fmt.Errorf("approval: toolCallID is required")
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = g.defaultTTL
	}

	now := g.now()
	req := &models.ApprovalRequest{
		ID:          params.ToolCallID + "-approval",
		ProjectID:   params.ProjectID,
		SessionID:   params.SessionID,
		ToolCallID:  params.ToolCallID,
		ToolID:      params.ToolID,
		ToolInput:   params.ToolInput,
		RiskLevel:   params.RiskLevel,
		RequestedAt: now,
		ExpiresAt:   now.Add(ttl),
		Status:      models.ApprovalPending,
	}

	if err := g.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("approval: create: %w", err)
	}

	g.mu.RLock()
	notify := g.notify
	g.mu.RUnlock()
	if notify != nil {
		notify(ctx, req)
	}

	return req, nil
}

// Resolve moves a pending request to approved or denied. Resolving an
// already-expired or already-decided request returns ErrNotPending.
func (g *Gate) Resolve(ctx context.Context, id string, decision models.ApprovalStatus, by, note string) (*models.ApprovalRequest, error) {
	if decision != models.ApprovalApproved && decision != models.ApprovalDenied {
		return nil, fmt.Errorf("approval: decision must be approved or denied, got %q", decision)
	}

	req, err := g.getAndExpire(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ApprovalPending {
		return nil, ErrNotPending
	}

	resolvedAt := g.now()
	req.Status = decision
	req.ResolvedAt = &resolvedAt
	req.ResolvedBy = by
	req.ResolutionNote = note

	if err := g.store.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("approval: update: %w", err)
	}
	return req, nil
}

// IsApproved reports true only if the request is in the approved state and
// has not expired (approval itself cannot expire once granted; this guards
// against a request that somehow carries both a decision and a stale
// expiresAt from a clock skew).
func (g *Gate) IsApproved(ctx context.Context, id string) (bool, error) {
	req, err := g.getAndExpire(ctx, id)
	if err != nil {
		return false, err
	}
	return req.Status == models.ApprovalApproved, nil
}

// Get returns the request by ID, lazily transitioning it to expired if its
// deadline has passed while still pending.
func (g *Gate) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return g.getAndExpire(ctx, id)
}

// ListPending returns all non-expired pending requests for a project,
// lazily expiring any that have passed their deadline.
func (g *Gate) ListPending(ctx context.Context, projectID string) ([]*models.ApprovalRequest, error) {
	all, err := g.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("approval: list: %w", err)
	}

	result := make([]*models.ApprovalRequest, 0, len(all))
	for _, req := range all {
		if req.Status != models.ApprovalPending {
			continue
		}
		if g.expire(req) {
			if err := g.store.Update(ctx, req); err != nil {
				return nil, fmt.Errorf("approval: update expired: %w", err)
			}
			continue
		}
		result = append(result, req)
	}
	return result, nil
}

func (g *Gate) getAndExpire(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval: get: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	if g.expire(req) {
		if err := g.store.Update(ctx, req); err != nil {
			return nil, fmt.Errorf("approval: update expired: %w", err)
		}
	}
	return req, nil
}

// expire mutates req to ApprovalExpired if it is pending and past its
// deadline, reporting whether it did so.
func (g *Gate) expire(req *models.ApprovalRequest) bool {
	if req.Status != models.ApprovalPending {
		return false
	}
	if req.ExpiresAt.IsZero() || g.now().Before(req.ExpiresAt) {
		return false
	}
	req.Status = models.ApprovalExpired
	return true
}
