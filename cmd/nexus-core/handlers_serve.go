package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nexuscore/nexus-core/internal/approval"
	"github.com/nexuscore/nexus-core/internal/channels"
	"github.com/nexuscore/nexus-core/internal/channels/slack"
	"github.com/nexuscore/nexus-core/internal/channels/telegram"
	"github.com/nexuscore/nexus-core/internal/config"
	"github.com/nexuscore/nexus-core/internal/costguard"
	"github.com/nexuscore/nexus-core/internal/httpapi"
	"github.com/nexuscore/nexus-core/internal/inbound"
	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/prompt"
	"github.com/nexuscore/nexus-core/internal/providers"
	"github.com/nexuscore/nexus-core/internal/runner"
	"github.com/nexuscore/nexus-core/internal/scheduler"
	"github.com/nexuscore/nexus-core/internal/secrets"
	"github.com/nexuscore/nexus-core/internal/store"
	"github.com/nexuscore/nexus-core/internal/tools"
	"github.com/nexuscore/nexus-core/internal/trace"
	"github.com/nexuscore/nexus-core/internal/webhook"
)

// runServe implements the serve command: wires every collaborator onto the
// shared Postgres connection pool and serves the HTTP API until a shutdown
// signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting nexus-core", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storeConfig := store.DefaultConfig()
	if cfg.Database.MaxConnections > 0 {
		storeConfig.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		storeConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	storeSet, err := store.NewStoreSetFromDSN(cfg.Database.URL, storeConfig)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storeSet.Close()

	providerRegistry, err := buildProviderRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	toolRegistry, err := buildToolRegistry()
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	costGuard := costguard.NewGuard()
	approvalGate := approval.NewGate(storeSet.Approvals)
	promptAssembler := prompt.NewAssembler(storeSet.PromptLayers)

	multiRunner := &multiProviderRunner{
		providers: providerRegistry,
		tools:     toolRegistry,
		cost:      costGuard,
		approval:  approvalGate,
		traces:    storeSet.Traces,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(storeSet.ScheduledTasks, storeSet.Projects, multiRunner, scheduler.Config{
			TickInterval:   cfg.Scheduler.PollInterval,
			MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		})
	}

	webhookProc := webhook.NewProcessor()
	webhookProc.Webhooks = storeSet.Webhooks
	webhookProc.Agents = &store.WebhookAgentConfigResolver{Projects: storeSet.Projects}
	webhookProc.Secrets = envSecretResolver{}
	webhookProc.Sessions = storeSet.Sessions
	webhookProc.Runner = multiRunner

	secretService, err := buildSecretService(storeSet, cfg)
	if err != nil {
		return fmt.Errorf("build secret service: %w", err)
	}

	channelResolver, err := buildChannelResolver(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build channel resolver: %w", err)
	}

	inboundProc := inbound.NewProcessor()
	inboundProc.Contacts = storeSet.Contacts
	inboundProc.Sessions = storeSet.Sessions
	inboundProc.Messages = storeSet.Messages
	inboundProc.Channels = channelResolver
	inboundProc.Runner = multiRunner

	server := httpapi.NewServer()
	server.Projects = storeSet.Projects
	server.PromptLayers = storeSet.PromptLayers
	server.Sessions = storeSet.Sessions
	server.Messages = storeSet.Messages
	server.Traces = storeSet.Traces
	server.Approvals = approvalGate
	server.ScheduledTasks = storeSet.ScheduledTasks
	server.Webhooks = storeSet.Webhooks
	server.WebhookProc = webhookProc
	server.Secrets = secretService
	server.Assembler = promptAssembler
	server.Providers = providerRegistry
	server.Tools = toolRegistry
	server.Cost = costGuard
	server.Inbound = inboundProc

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if sched != nil {
		sched.Start(ctx)
		slog.Info("scheduled task dispatcher started", "tick_interval", cfg.Scheduler.PollInterval)
	}

	if err := channelResolver.StartAll(ctx); err != nil {
		return fmt.Errorf("start channel resolvers: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := channelResolver.StopAll(stopCtx); err != nil {
			slog.Warn("channel resolver stop failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	slog.Info("nexus-core started", "http_addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Warn("scheduler stop failed", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("nexus-core stopped cleanly")
	return nil
}

// buildProviderRegistry registers one adapter per entry in cfg.LLM.Providers,
// keyed by the same name the config map used ("anthropic", "openai",
// "bedrock"). A project's AgentConfig.Provider.Provider must match one of
// these names to be runnable.
func buildProviderRegistry(ctx context.Context, cfg *config.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:  os.Getenv(pc.APIKeyEnvVar),
				BaseURL: pc.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			registry.Register(p)
		case "openai":
			p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey:  os.Getenv(pc.APIKeyEnvVar),
				BaseURL: pc.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("openai provider: %w", err)
			}
			registry.Register(p)
		case "bedrock":
			p, err := providers.NewBedrockProvider(ctx, providers.BedrockConfig{
				Region: pc.Region,
			})
			if err != nil {
				return nil, fmt.Errorf("bedrock provider: %w", err)
			}
			registry.Register(p)
		default:
			slog.Warn("skipping unknown provider in config", "provider", name)
		}
	}
	return registry, nil
}

func buildToolRegistry() (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.Calculator{}); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.HTTPRequest{Client: &http.Client{Timeout: 30 * time.Second}}); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.FileRead{Workspace: "./workspace", MaxReadBytes: 1 << 20}); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildChannelResolver registers one channels.Resolver per enabled entry in
// cfg.Channels. An OutboundMessage whose Channel names a disabled or
// unconfigured adapter fails at Send time with a clear error rather than
// silently dropping the reply.
func buildChannelResolver(ctx context.Context, cfg *config.Config) (*channels.MultiResolver, error) {
	var resolvers []channels.Resolver

	if cfg.Channels.Telegram.Enabled {
		r, err := telegram.New(telegram.Config{
			Token: os.Getenv(cfg.Channels.Telegram.BotTokenEnvVar),
		})
		if err != nil {
			return nil, fmt.Errorf("telegram resolver: %w", err)
		}
		resolvers = append(resolvers, r)
	}

	if cfg.Channels.Slack.Enabled {
		r, err := slack.New(ctx, slack.Config{
			BotToken: os.Getenv(cfg.Channels.Slack.BotTokenEnvVar),
		})
		if err != nil {
			return nil, fmt.Errorf("slack resolver: %w", err)
		}
		resolvers = append(resolvers, r)
	}

	return channels.NewMultiResolver(resolvers...), nil
}

func buildSecretService(storeSet store.StoreSet, cfg *config.Config) (*secrets.Service, error) {
	masterKey := []byte(os.Getenv(cfg.Secrets.MasterKeyEnvVar))
	if len(masterKey) != secrets.KeySize {
		return nil, nexuserr.New(nexuserr.CodeValidation,
			fmt.Sprintf("%s must hold exactly %d bytes for AES-256-GCM", cfg.Secrets.MasterKeyEnvVar, secrets.KeySize))
	}
	return secrets.New(storeSet.Secrets, masterKey)
}

// envSecretResolver resolves a webhook's HMAC signing secret straight from
// the process environment -- SecretEnvVar names an OS env var, not a row in
// the per-project Secret Service.
type envSecretResolver struct{}

func (envSecretResolver) Resolve(_ context.Context, envVar string) (string, error) {
	v := os.Getenv(envVar)
	if strings.TrimSpace(v) == "" {
		return "", nexuserr.New(nexuserr.CodeNotFound, fmt.Sprintf("environment variable %q is not set", envVar))
	}
	return v, nil
}

// multiProviderRunner satisfies both scheduler.Runner and webhook.Runner. It
// exists because a single *runner.Runner is bound to one fixed Provider at
// construction time, but scheduled tasks and webhook-triggered turns can
// belong to projects configured with different providers -- so a fresh
// *runner.Runner is built per call, selecting the provider named by the
// turn's own AgentConfig.
type multiProviderRunner struct {
	providers *providers.Registry
	tools     *tools.Registry
	cost      *costguard.Guard
	approval  *approval.Gate
	traces    trace.Store
}

func (m *multiProviderRunner) Run(ctx context.Context, params runner.Params) (*runner.Result, error) {
	provider := m.providers.Get(params.AgentConfig.Provider.Provider)
	if provider == nil {
		return nil, nexuserr.New(nexuserr.CodeValidation,
			fmt.Sprintf("no provider registered for %q", params.AgentConfig.Provider.Provider))
	}
	run := runner.New(runner.Deps{
		Provider:   provider,
		Tools:      m.tools,
		Cost:       m.cost,
		Approval:   m.approval,
		TraceStore: m.traces,
	})
	return run.Run(ctx, params)
}
