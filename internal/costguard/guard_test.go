package costguard

import (
	"context"
	"testing"

	"github.com/nexuscore/nexus-core/pkg/models"
)

func TestPrecheck_AllowsWithinBudget(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()

	result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: 100})
	if err != nil {
		t.Fatalf("Precheck error: %v", err)
	}
	if !result.Allow {
		t.Errorf("expected allow, got deny: %s", result.Reason)
	}
	if result.MaxTokensPerTurn != cfg.MaxTokensPerTurn {
		t.Errorf("MaxTokensPerTurn = %d, want %d", result.MaxTokensPerTurn, cfg.MaxTokensPerTurn)
	}
}

func TestPrecheck_DeniesOverMaxTokensPerTurn(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()

	result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: cfg.MaxTokensPerTurn + 1})
	if err != nil {
		t.Fatalf("Precheck error: %v", err)
	}
	if result.Allow {
		t.Error("expected deny when planned tokens exceed max tokens per turn")
	}
}

func TestPrecheck_DeniesWhenDailyHardLimitWouldBeExceeded(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()
	cfg.DailyBudgetUSD = 1.0
	cfg.HardLimitPercent = 100

	// Record usage that already spends the whole daily budget.
	_, err := g.RecordUsage(context.Background(), "proj-1", cfg, models.UsageRecord{CostUSD: 1.0})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}

	result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: 10})
	if err != nil {
		t.Fatalf("Precheck error: %v", err)
	}
	if result.Allow {
		t.Error("expected deny once daily budget hard limit is exhausted")
	}
	if result.Reason == "" {
		t.Error("expected a reason on deny")
	}
}

func TestPrecheck_RateLimitSlidingWindow(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()
	cfg.MaxRequestsPerMinute = 2
	cfg.MaxRequestsPerHour = 1000

	for i := 0; i < 2; i++ {
		result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: 1})
		if err != nil {
			t.Fatalf("Precheck error: %v", err)
		}
		if !result.Allow {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}

	result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: 1})
	if err != nil {
		t.Fatalf("Precheck error: %v", err)
	}
	if result.Allow {
		t.Error("expected third request within the same minute to be denied")
	}
}

func TestRecordUsage_AccumulatesSpend(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()

	status, err := g.RecordUsage(context.Background(), "proj-1", cfg, models.UsageRecord{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}

	// 1M input at $3/1M + 1M output at $15/1M = $18.
	if status.DailyUSD != 18.0 {
		t.Errorf("DailyUSD = %v, want 18.0", status.DailyUSD)
	}
	if status.MonthlyUSD != 18.0 {
		t.Errorf("MonthlyUSD = %v, want 18.0", status.MonthlyUSD)
	}
	if status.TokensToday != 2_000_000 {
		t.Errorf("TokensToday = %d, want 2000000", status.TokensToday)
	}
}

func TestRecordUsage_AlertFiresOnce(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()
	cfg.DailyBudgetUSD = 10
	cfg.AlertThresholdPercent = 50

	status, err := g.RecordUsage(context.Background(), "proj-1", cfg, models.UsageRecord{CostUSD: 6})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	if !status.AlertJustTriggered {
		t.Error("expected alert to fire once spend crosses the threshold")
	}

	status2, err := g.RecordUsage(context.Background(), "proj-1", cfg, models.UsageRecord{CostUSD: 0.5})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	if status2.AlertJustTriggered {
		t.Error("expected alert to be one-shot, not fire again")
	}
	if !status2.AlertThresholdHit {
		t.Error("expected AlertThresholdHit to remain true after the first trigger")
	}
}

func TestStatus_DoesNotConsumeRateLimit(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()
	cfg.MaxRequestsPerMinute = 1

	if _, err := g.Status(context.Background(), "proj-1", cfg); err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if _, err := g.Status(context.Background(), "proj-1", cfg); err != nil {
		t.Fatalf("Status error: %v", err)
	}

	result, err := g.Precheck(context.Background(), "proj-1", cfg, PrecheckRequest{PlannedTokens: 1})
	if err != nil {
		t.Fatalf("Precheck error: %v", err)
	}
	if !result.Allow {
		t.Error("expected Status calls to not consume the rate-limit budget")
	}
}

func TestPrecheck_RequiresProjectID(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()

	if _, err := g.Precheck(context.Background(), "", cfg, PrecheckRequest{}); err == nil {
		t.Error("expected error for empty projectID")
	}
}

func TestReset_ClearsProjectState(t *testing.T) {
	g := NewGuard()
	cfg := models.DefaultCostConfig()

	if _, err := g.RecordUsage(context.Background(), "proj-1", cfg, models.UsageRecord{CostUSD: 5}); err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	g.Reset("proj-1")

	status, err := g.Status(context.Background(), "proj-1", cfg)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status.DailyUSD != 0 {
		t.Errorf("DailyUSD = %v, want 0 after reset", status.DailyUSD)
	}
}

func TestResolvePricing_UnknownFallsBack(t *testing.T) {
	p := ResolvePricing("unknown-provider", "unknown-model")
	if p != fallbackPricing {
		t.Errorf("expected fallback pricing for unknown provider/model, got %+v", p)
	}
}

func TestResolvePricing_KnownModel(t *testing.T) {
	p := ResolvePricing("openai", "gpt-4o-mini")
	if p.InputPer1M != 0.15 {
		t.Errorf("InputPer1M = %v, want 0.15", p.InputPer1M)
	}
}

func TestEstimateCostUSD(t *testing.T) {
	pricing := ModelPricing{InputPer1M: 1.0, OutputPer1M: 2.0, CachedInputPer1M: 0.5}
	cost := EstimateCostUSD(1_000_000, 1_000_000, 1_000_000, pricing)
	if cost != 3.5 {
		t.Errorf("EstimateCostUSD = %v, want 3.5", cost)
	}
}
