// Package slack adapts the Slack Web API to internal/channels.Resolver,
// generalized from the teacher's Socket Mode Adapter (which ran its own
// event loop to emit inbound messages) down to the send-only shape
// internal/inbound.ChannelResolver needs here: Slack's own inbound
// delivery path is the webhook payload internal/webhook already parses.
package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/nexuscore/nexus-core/internal/channels"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// Config holds configuration for the Slack resolver.
type Config struct {
	// BotToken is the xoxb- token used for Web API calls.
	BotToken string

	RateLimit float64
	RateBurst int
	ChunkSize int

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.BotToken == "" {
		return channels.ErrConfig("bot_token is required", nil)
	}
	if c.RateLimit == 0 {
		c.RateLimit = 1 // Slack's Tier 1 chat.postMessage limit is ~1/sec per channel
	}
	if c.RateBurst == 0 {
		c.RateBurst = 5
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 4000 // Slack's block text limit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Resolver implements channels.Resolver for Slack.
type Resolver struct {
	cfg         Config
	client      SlackAPIClient
	rateLimiter *channels.RateLimiter
	chunker     *channels.MessageChunker
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Slack resolver and verifies the bot token against
// auth.test.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := slack.New(cfg.BotToken)

	r := &Resolver{
		cfg:         cfg,
		client:      client,
		rateLimiter: channels.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		chunker:     channels.NewMessageChunker(cfg.ChunkSize),
		logger:      cfg.Logger.With("adapter", "slack"),
	}
	r.health = channels.NewBaseHealthAdapter("slack", r.logger)

	if _, err := client.AuthTestContext(ctx); err != nil {
		r.health.SetStatus(false, err.Error())
		return nil, channels.ErrAuthentication("slack auth test failed", err)
	}
	r.health.SetStatus(true, "")
	r.health.RecordConnectionOpened()
	return r, nil
}

// Channel reports this resolver's channel name.
func (r *Resolver) Channel() string { return "slack" }

// Send posts an OutboundMessage to the Slack channel named by
// out.RecipientIdentifier, chunking replies that exceed Slack's block text
// limit and threading onto out.InReplyToChannelID when set.
func (r *Resolver) Send(ctx context.Context, out models.OutboundMessage) error {
	start := time.Now()

	chunks := r.chunker.Chunk(out.Content)
	if len(chunks) == 0 {
		chunks = []string{out.Content}
	}

	for _, chunk := range chunks {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			r.health.RecordError(channels.ErrCodeTimeout)
			return channels.ErrTimeout("rate limit wait cancelled", err)
		}

		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if out.InReplyToChannelID != "" {
			opts = append(opts, slack.MsgOptionTS(out.InReplyToChannelID))
		}

		if _, _, err := r.client.PostMessageContext(ctx, out.RecipientIdentifier, opts...); err != nil {
			r.health.RecordMessageFailed()
			r.health.RecordError(channels.ErrCodeConnection)
			return channels.ErrConnection("slack post message failed", err)
		}
	}

	r.health.RecordMessageSent()
	r.health.RecordSendLatency(time.Since(start))
	r.health.UpdateLastPing()
	return nil
}

// IsHealthy reports whether the last auth check or send succeeded.
func (r *Resolver) IsHealthy() bool {
	return r.health.Status().Connected
}

func (r *Resolver) Status() channels.Status { return r.health.Status() }
func (r *Resolver) HealthCheck(ctx context.Context) channels.HealthStatus {
	return r.health.HealthCheck(ctx)
}
func (r *Resolver) Metrics() channels.MetricsSnapshot { return r.health.Metrics() }
