// Package models defines the core data types for Nexus Core.
package models

import "time"

// Environment is the deployment tier a project runs in.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
)

// Project is the tenant root. Every other entity in the system is keyed,
// directly or transitively, by ProjectID.
type Project struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Owner       string      `json:"owner"`
	Environment Environment `json:"environment"`
	Tags        []string    `json:"tags,omitempty"`
	AgentConfig AgentConfig `json:"agent_config"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ProviderSpec selects the LLM backend and its invocation parameters.
type ProviderSpec struct {
	Provider     string  `json:"provider"` // anthropic, openai, bedrock
	Model        string  `json:"model"`
	APIKeyEnvVar string  `json:"api_key_env_var"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// FailoverRules governs provider-level retry behavior.
type FailoverRules struct {
	RetryOnRateLimit  bool `json:"retry_on_rate_limit"`
	RetryOnServerErr  bool `json:"retry_on_server_error"`
	RetryOnTimeout    bool `json:"retry_on_timeout"`
	MaxRetries        int  `json:"max_retries"`
	TimeoutMs         int  `json:"timeout_ms"`
}

// PruningStrategy names the memory-pruning algorithm (Memory Manager L2).
type PruningStrategy string

const (
	PruningTurnBased  PruningStrategy = "turn-based"
	PruningTokenBased PruningStrategy = "token-based"
)

// MemoryConfig controls context fitting, pruning, and compaction for a project.
type MemoryConfig struct {
	LongTermEnabled    bool            `json:"long_term_enabled"`
	ContextWindowSize  int             `json:"context_window_size"`
	ReserveTokens      int             `json:"reserve_tokens"`
	PruningStrategy    PruningStrategy `json:"pruning_strategy"`
	MaxTurns           int             `json:"max_turns"`
	CompactionEnabled  bool            `json:"compaction_enabled"`
}

// CostConfig defines the budget envelope enforced by the Cost Guard.
type CostConfig struct {
	DailyBudgetUSD        float64 `json:"daily_budget_usd"`
	MonthlyBudgetUSD      float64 `json:"monthly_budget_usd"`
	MaxTokensPerTurn      int     `json:"max_tokens_per_turn"`
	MaxTurnsPerSession    int     `json:"max_turns_per_session"`
	MaxToolCallsPerTurn   int     `json:"max_tool_calls_per_turn"`
	AlertThresholdPercent float64 `json:"alert_threshold_percent"`
	HardLimitPercent      float64 `json:"hard_limit_percent"`
	MaxRequestsPerMinute  int     `json:"max_requests_per_minute"`
	MaxRequestsPerHour    int     `json:"max_requests_per_hour"`
}

// AgentConfig is the opaque-to-callers, typed-internally configuration
// embedded in a Project: provider choice, failover, tool allowlist, memory
// limits, and cost limits.
type AgentConfig struct {
	Provider     ProviderSpec  `json:"provider"`
	Failover     FailoverRules `json:"failover"`
	AllowedTools []string      `json:"allowed_tools"`
	Memory       MemoryConfig  `json:"memory"`
	Cost         CostConfig    `json:"cost"`
}

// DefaultCostConfig returns sane cost-guard defaults for newly created projects.
func DefaultCostConfig() CostConfig {
	return CostConfig{
		DailyBudgetUSD:        10,
		MonthlyBudgetUSD:      200,
		MaxTokensPerTurn:      8000,
		MaxTurnsPerSession:    25,
		MaxToolCallsPerTurn:   10,
		AlertThresholdPercent: 80,
		HardLimitPercent:      100,
		MaxRequestsPerMinute:  60,
		MaxRequestsPerHour:    1000,
	}
}

// DefaultMemoryConfig returns sane memory-manager defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ContextWindowSize: 200000,
		ReserveTokens:     4000,
		PruningStrategy:   PruningTokenBased,
		MaxTurns:          20,
		CompactionEnabled: true,
	}
}
