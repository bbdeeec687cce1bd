// Package config loads and validates the runtime configuration for the
// Nexus Core control plane. Per-project policy (budgets, memory tuning,
// allowed tools) lives in models.AgentConfig and is stored alongside the
// project; this package only covers process-wide settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level runtime configuration for a nexus-core process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	LLM       LLMConfig       `yaml:"llm"`
	MCP       MCPConfig       `yaml:"mcp"`
	Memory    MemoryConfig    `yaml:"memory"`
	CostGuard CostGuardConfig `yaml:"cost_guard"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Channels  ChannelsConfig  `yaml:"channels"`
}

// ServerConfig controls the HTTP API listener (§6).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the primary repository backend.
type DatabaseConfig struct {
	// Driver selects the repository implementation: "postgres" or "memory".
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig controls bearer-token authentication on the HTTP API.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig controls OpenTelemetry trace export, separate from the
// persisted ExecutionTrace domain object built by internal/trace.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	Insecure       bool    `yaml:"insecure"`
}

// LLMConfig configures the set of available provider adapters (C1).
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig is the process-wide connection config for one provider;
// model/temperature selection is per-project (models.ProviderSpec).
type LLMProviderConfig struct {
	APIKeyEnvVar string `yaml:"api_key_env_var"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // used by the bedrock adapter
}

// MCPConfig configures the MCP connection manager (C3).
type MCPConfig struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	MaxParallelDials  int           `yaml:"max_parallel_dials"`
	ToolCallTimeout   time.Duration `yaml:"tool_call_timeout"`
}

// MemoryConfig configures the long-term memory backend (C4, L4).
type MemoryConfig struct {
	// Backend selects the vector store: "sqlite-vec", "pgvector", "lancedb", or
	// "memory" for the in-process test backend.
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`

	// Embedder selects the embedding provider: "openai" or "ollama".
	Embedder        string `yaml:"embedder"`
	EmbedderAPIKeyEnvVar string `yaml:"embedder_api_key_env_var"`
	EmbedderModel    string `yaml:"embedder_model"`
	EmbedderBaseURL  string `yaml:"embedder_base_url"`

	// DecayHalfLife is the half-life used by the importance decay formula.
	DecayHalfLife time.Duration `yaml:"decay_half_life"`
}

// CostGuardConfig holds process-wide fallbacks for models.CostConfig fields
// a project did not set explicitly.
type CostGuardConfig struct {
	DailyBudgetUSD   float64 `yaml:"daily_budget_usd"`
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd"`
}

// SchedulerConfig configures the scheduled-task dispatcher (C12).
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	WorkerID        string        `yaml:"worker_id"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	LockDuration    time.Duration `yaml:"lock_duration"`
}

// WebhookConfig configures the webhook processor's async queue (C13).
type WebhookConfig struct {
	// QueueBackend selects "redis" or "memory".
	QueueBackend   string        `yaml:"queue_backend"`
	RedisURL       string        `yaml:"redis_url"`
	WorkerPoolSize int           `yaml:"worker_pool_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// SecretsConfig configures the Secret Service's master key source (C14).
type SecretsConfig struct {
	MasterKeyEnvVar string `yaml:"master_key_env_var"`
}

// ChannelsConfig enables/configures inbound channel adapters (C11).
type ChannelsConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type SlackConfig struct {
	Enabled             bool   `yaml:"enabled"`
	BotTokenEnvVar      string `yaml:"bot_token_env_var"`
	SigningSecretEnvVar string `yaml:"signing_secret_env_var"`
}

type TelegramConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BotTokenEnvVar string `yaml:"bot_token_env_var"`
}

// Load reads, merges ($include-resolving), and validates the configuration
// file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "nexus-core"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 0.1
	}

	if cfg.MCP.ConnectTimeout == 0 {
		cfg.MCP.ConnectTimeout = 10 * time.Second
	}
	if cfg.MCP.MaxParallelDials == 0 {
		cfg.MCP.MaxParallelDials = 8
	}
	if cfg.MCP.ToolCallTimeout == 0 {
		cfg.MCP.ToolCallTimeout = 30 * time.Second
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "sqlite-vec"
	}
	if cfg.Memory.Embedder == "" {
		cfg.Memory.Embedder = "openai"
	}
	if cfg.Memory.EmbedderModel == "" {
		cfg.Memory.EmbedderModel = "text-embedding-3-small"
	}
	if cfg.Memory.DecayHalfLife == 0 {
		cfg.Memory.DecayHalfLife = 14 * 24 * time.Hour
	}

	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 10 * time.Second
	}
	if cfg.Scheduler.MaxConcurrency == 0 {
		cfg.Scheduler.MaxConcurrency = 5
	}
	if cfg.Scheduler.LockDuration == 0 {
		cfg.Scheduler.LockDuration = 10 * time.Minute
	}

	if cfg.Webhook.QueueBackend == "" {
		cfg.Webhook.QueueBackend = "memory"
	}
	if cfg.Webhook.WorkerPoolSize == 0 {
		cfg.Webhook.WorkerPoolSize = 4
	}
	if cfg.Webhook.ProcessTimeout == 0 {
		cfg.Webhook.ProcessTimeout = 30 * time.Second
	}

	if cfg.Secrets.MasterKeyEnvVar == "" {
		cfg.Secrets.MasterKeyEnvVar = "NEXUS_MASTER_KEY"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// ConfigValidationError aggregates every config issue found so operators fix
// them in one pass instead of one-at-a-time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		issues = append(issues, `database.driver must be "postgres" or "memory"`)
	}
	if cfg.Database.Driver == "postgres" && strings.TrimSpace(cfg.Database.URL) == "" {
		issues = append(issues, "database.url is required when database.driver is postgres")
	}

	if jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret); jwtSecret != "" && len(jwtSecret) < 32 {
		issues = append(issues, "auth.jwt_secret must be at least 32 characters")
	}

	switch cfg.Memory.Backend {
	case "sqlite-vec", "pgvector", "lancedb", "memory":
	default:
		issues = append(issues, `memory.backend must be "sqlite-vec", "pgvector", "lancedb", or "memory"`)
	}
	switch cfg.Memory.Embedder {
	case "openai", "ollama":
	default:
		issues = append(issues, `memory.embedder must be "openai" or "ollama"`)
	}

	switch cfg.Webhook.QueueBackend {
	case "redis", "memory":
	default:
		issues = append(issues, `webhook.queue_backend must be "redis" or "memory"`)
	}
	if cfg.Webhook.QueueBackend == "redis" && strings.TrimSpace(cfg.Webhook.RedisURL) == "" {
		issues = append(issues, "webhook.redis_url is required when webhook.queue_backend is redis")
	}

	if cfg.Scheduler.MaxConcurrency < 0 {
		issues = append(issues, "scheduler.max_concurrency must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
