// Package costguard enforces the per-project budget envelope described by
// models.CostConfig: it denies turns projected to blow the daily or monthly
// hard limit, denies requests beyond the configured sliding-window rate
// limits, and raises a one-shot alert the first time spend crosses the
// configured threshold.
package costguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexuscore/nexus-core/internal/infra"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// PrecheckRequest describes the turn a caller is about to run.
type PrecheckRequest struct {
	PlannedTokens int
	Provider      string
	Model         string
}

// PrecheckResult is the verdict returned by Precheck. MaxTokensPerTurn and
// MaxToolCallsPerTurn are echoed back from the project's CostConfig so the
// Agent Runner can enforce per-turn caps without holding its own copy of the
// config.
type PrecheckResult struct {
	Allow               bool
	Reason              string
	MaxTokensPerTurn    int
	MaxToolCallsPerTurn int
}

// Status is the current spend snapshot for a project.
type Status struct {
	ProjectID          string
	DailyUSD           float64
	MonthlyUSD         float64
	DailyBudgetUSD     float64
	MonthlyBudgetUSD   float64
	TokensToday        int
	AlertThresholdHit   bool
	AlertJustTriggered bool
}

type projectState struct {
	mu sync.Mutex

	dayKey   string
	dailyUSD float64
	tokensToday int

	monthKey   string
	monthlyUSD float64

	alertFired bool

	minuteLimit   int
	hourLimit     int
	minuteLimiter *infra.SlidingWindowLimiter
	hourLimiter   *infra.SlidingWindowLimiter
}

// Guard tracks per-project spend and request-rate state in memory. It is
// safe for concurrent use by multiple goroutines and multiple projects.
type Guard struct {
	mu       sync.Mutex
	projects map[string]*projectState
	now      func() time.Time
}

// NewGuard creates a Guard with no projects tracked yet.
func NewGuard() *Guard {
	return &Guard{
		projects: make(map[string]*projectState),
		now:      time.Now,
	}
}

func (g *Guard) stateFor(projectID string, cfg models.CostConfig) *projectState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.projects[projectID]
	if !ok {
		st = &projectState{}
		g.projects[projectID] = st
	}
	if st.minuteLimiter == nil || st.minuteLimit != cfg.MaxRequestsPerMinute {
		st.minuteLimit = cfg.MaxRequestsPerMinute
		st.minuteLimiter = infra.NewSlidingWindowLimiter(cfg.MaxRequestsPerMinute, time.Minute)
	}
	if st.hourLimiter == nil || st.hourLimit != cfg.MaxRequestsPerHour {
		st.hourLimit = cfg.MaxRequestsPerHour
		st.hourLimiter = infra.NewSlidingWindowLimiter(cfg.MaxRequestsPerHour, time.Hour)
	}
	return st
}

// rollWindows resets the daily/monthly accumulators when the calendar day or
// month has rolled over since the last observation. Must be called with
// st.mu held.
func (st *projectState) rollWindows(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if st.dayKey != day {
		st.dayKey = day
		st.dailyUSD = 0
		st.tokensToday = 0
		st.alertFired = false
	}
	month := now.UTC().Format("2006-01")
	if st.monthKey != month {
		st.monthKey = month
		st.monthlyUSD = 0
	}
}

// Precheck decides whether a planned turn may proceed, given the project's
// current spend, its configured budget envelope, and its request-rate
// limits. It never mutates spend state -- RecordUsage does that -- but it
// does consume a slot from the sliding-window rate limiters, since an
// allowed precheck stands in for the request actually being made.
func (g *Guard) Precheck(ctx context.Context, projectID string, cfg models.CostConfig, req PrecheckRequest) (*PrecheckResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("costguard: projectID is required")
	}

	result := &PrecheckResult{
		MaxTokensPerTurn:    cfg.MaxTokensPerTurn,
		MaxToolCallsPerTurn: cfg.MaxToolCallsPerTurn,
	}

	st := g.stateFor(projectID, cfg)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rollWindows(g.now())

	pricing := ResolvePricing(req.Provider, req.Model)
	estimated := EstimatePlannedCostUSD(req.PlannedTokens, pricing)

	if cfg.DailyBudgetUSD > 0 {
		dailyCap := cfg.DailyBudgetUSD * cfg.HardLimitPercent / 100
		if st.dailyUSD+estimated > dailyCap {
			result.Allow = false
			result.Reason = "daily budget hard limit would be exceeded"
			return result, nil
		}
	}
	if cfg.MonthlyBudgetUSD > 0 {
		monthlyCap := cfg.MonthlyBudgetUSD * cfg.HardLimitPercent / 100
		if st.monthlyUSD+estimated > monthlyCap {
			result.Allow = false
			result.Reason = "monthly budget hard limit would be exceeded"
			return result, nil
		}
	}
	if cfg.MaxTokensPerTurn > 0 && req.PlannedTokens > cfg.MaxTokensPerTurn {
		result.Allow = false
		result.Reason = "planned tokens exceed max tokens per turn"
		return result, nil
	}

	if cfg.MaxRequestsPerMinute > 0 && !st.minuteLimiter.Allow() {
		result.Allow = false
		result.Reason = "requests per minute limit exceeded"
		return result, nil
	}
	if cfg.MaxRequestsPerHour > 0 && !st.hourLimiter.Allow() {
		result.Allow = false
		result.Reason = "requests per hour limit exceeded"
		return result, nil
	}

	result.Allow = true
	return result, nil
}

// RecordUsage applies a completed turn's actual usage to the project's
// daily/monthly accumulators and reports whether this call just pushed spend
// across the configured alert threshold for the first time today.
func (g *Guard) RecordUsage(ctx context.Context, projectID string, cfg models.CostConfig, record models.UsageRecord) (*Status, error) {
	if projectID == "" {
		return nil, fmt.Errorf("costguard: projectID is required")
	}

	st := g.stateFor(projectID, cfg)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := g.now()
	if record.Timestamp.IsZero() {
		record.Timestamp = now
	}
	st.rollWindows(now)

	cost := record.CostUSD
	if cost == 0 {
		pricing := ResolvePricing(record.Provider, record.Model)
		cost = EstimateCostUSD(record.InputTokens, record.OutputTokens, record.CacheReadTokens, pricing)
	}

	st.dailyUSD += cost
	st.monthlyUSD += cost
	st.tokensToday += record.InputTokens + record.OutputTokens

	justTriggered := false
	if !st.alertFired && cfg.DailyBudgetUSD > 0 && cfg.AlertThresholdPercent > 0 {
		pct := st.dailyUSD / cfg.DailyBudgetUSD * 100
		if pct >= cfg.AlertThresholdPercent {
			st.alertFired = true
			justTriggered = true
		}
	}

	return &Status{
		ProjectID:          projectID,
		DailyUSD:           st.dailyUSD,
		MonthlyUSD:         st.monthlyUSD,
		DailyBudgetUSD:     cfg.DailyBudgetUSD,
		MonthlyBudgetUSD:   cfg.MonthlyBudgetUSD,
		TokensToday:        st.tokensToday,
		AlertThresholdHit:  st.alertFired,
		AlertJustTriggered: justTriggered,
	}, nil
}

// Status returns the project's current spend snapshot without consuming any
// rate-limit slots or mutating state beyond day/month rollover.
func (g *Guard) Status(ctx context.Context, projectID string, cfg models.CostConfig) (*Status, error) {
	if projectID == "" {
		return nil, fmt.Errorf("costguard: projectID is required")
	}

	st := g.stateFor(projectID, cfg)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rollWindows(g.now())

	return &Status{
		ProjectID:         projectID,
		DailyUSD:          st.dailyUSD,
		MonthlyUSD:        st.monthlyUSD,
		DailyBudgetUSD:    cfg.DailyBudgetUSD,
		MonthlyBudgetUSD:  cfg.MonthlyBudgetUSD,
		TokensToday:       st.tokensToday,
		AlertThresholdHit: st.alertFired,
	}, nil
}

// Reset drops all tracked state for a project, used by tests and by project
// deletion.
func (g *Guard) Reset(projectID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.projects, projectID)
}
