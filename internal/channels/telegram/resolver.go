// Package telegram adapts the Telegram Bot API to
// internal/channels.Resolver, generalized from the teacher's push-based
// Adapter (which emitted inbound updates onto a Messages() channel) to the
// simpler send-only shape internal/inbound.ChannelResolver needs: this
// module's Inbound Processor already owns the synchronous
// resolve-contact -> resolve-session -> run-turn -> reply pipeline, so the
// channel side only has to deliver the reply and report health.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/nexuscore/nexus-core/internal/channels"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// Config holds configuration for the Telegram resolver.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token string

	// RateLimit configures outbound rate limiting (messages per second).
	RateLimit float64

	// RateBurst configures the burst capacity for rate limiting.
	RateBurst int

	// ChunkSize splits replies longer than this into multiple messages,
	// matching Telegram's ~4096 character limit per message.
	ChunkSize int

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.RateLimit == 0 {
		c.RateLimit = 30 // Telegram's limit is ~30 messages per second
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 4096
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Resolver implements channels.Resolver and channels.LifecycleAdapter for
// Telegram.
type Resolver struct {
	cfg         Config
	bot         *bot.Bot
	botClient   BotClient
	rateLimiter *channels.RateLimiter
	chunker     *channels.MessageChunker
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Telegram resolver. The bot connection is established by
// Start, not here, so New never fails on network reachability.
func New(cfg Config) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Resolver{
		cfg:         cfg,
		rateLimiter: channels.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		chunker:     channels.NewMessageChunker(cfg.ChunkSize),
		logger:      cfg.Logger.With("adapter", "telegram"),
	}
	r.health = channels.NewBaseHealthAdapter("telegram", r.logger)
	return r, nil
}

// Channel reports this resolver's channel name.
func (r *Resolver) Channel() string { return "telegram" }

// Start establishes the bot connection used by Send.
func (r *Resolver) Start(ctx context.Context) error {
	b, err := bot.New(r.cfg.Token)
	if err != nil {
		r.health.SetStatus(false, err.Error())
		r.health.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("failed to create bot", err)
	}
	r.bot = b
	r.botClient = newRealBotClient(b)
	r.health.SetStatus(true, "")
	r.health.RecordConnectionOpened()
	return nil
}

// Stop releases the bot connection.
func (r *Resolver) Stop(ctx context.Context) error {
	r.health.SetStatus(false, "stopped")
	r.health.RecordConnectionClosed()
	return nil
}

// Send delivers an OutboundMessage to the chat named by
// out.RecipientIdentifier, a Telegram chat ID, splitting long replies into
// chunks that respect Telegram's per-message character limit.
func (r *Resolver) Send(ctx context.Context, out models.OutboundMessage) error {
	start := time.Now()
	if r.botClient == nil {
		r.health.RecordMessageFailed()
		return channels.ErrInternal("telegram bot not started", nil)
	}

	chatID, err := strconv.ParseInt(out.RecipientIdentifier, 10, 64)
	if err != nil {
		r.health.RecordMessageFailed()
		r.health.RecordError(channels.ErrCodeInvalidInput)
		return channels.ErrInvalidInput(fmt.Sprintf("invalid telegram chat id %q", out.RecipientIdentifier), err)
	}

	chunks := r.chunker.Chunk(out.Content)
	if len(chunks) == 0 {
		chunks = []string{out.Content}
	}

	for _, chunk := range chunks {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			r.health.RecordError(channels.ErrCodeTimeout)
			return channels.ErrTimeout("rate limit wait cancelled", err)
		}
		if _, err := r.botClient.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}); err != nil {
			r.health.RecordMessageFailed()
			r.health.RecordError(channels.ErrCodeConnection)
			return channels.ErrConnection("telegram send failed", err)
		}
	}

	r.health.RecordMessageSent()
	r.health.RecordSendLatency(time.Since(start))
	r.health.UpdateLastPing()
	return nil
}

// IsHealthy reports whether the bot connection is currently open.
func (r *Resolver) IsHealthy() bool {
	return r.health.Status().Connected
}

// Status, HealthCheck, and Metrics expose the richer channels.HealthAdapter
// surface for callers that want more than the bool IsHealthy gives.
func (r *Resolver) Status() channels.Status                        { return r.health.Status() }
func (r *Resolver) HealthCheck(ctx context.Context) channels.HealthStatus { return r.health.HealthCheck(ctx) }
func (r *Resolver) Metrics() channels.MetricsSnapshot               { return r.health.Metrics() }
