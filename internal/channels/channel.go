package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// Resolver is the contract a concrete channel adapter (telegram, slack, ...)
// implements to satisfy internal/inbound.ChannelResolver for its own channel
// name. LifecycleAdapter is optional: adapters that need to open a
// connection (e.g. Slack's Socket Mode) implement it too.
type Resolver interface {
	Channel() string
	Send(ctx context.Context, out models.OutboundMessage) error
	IsHealthy() bool
}

// LifecycleAdapter represents adapters that hold an open connection.
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthAdapter represents adapters that expose status and metrics beyond
// the single IsHealthy bool Resolver requires.
type HealthAdapter interface {
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
	Metrics() MetricsSnapshot
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}

// HealthStatus represents the health check result for an adapter.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Degraded  bool          `json:"degraded,omitempty"`
}

// MultiResolver dispatches across every registered channel Resolver,
// satisfying internal/inbound.ChannelResolver for the whole set. This is
// what cmd/nexus-core wires into the Inbound Processor.
type MultiResolver struct {
	resolvers map[string]Resolver
}

// NewMultiResolver builds a MultiResolver from the given channel adapters,
// keyed by each adapter's own Channel() name.
func NewMultiResolver(resolvers ...Resolver) *MultiResolver {
	m := &MultiResolver{resolvers: make(map[string]Resolver, len(resolvers))}
	for _, r := range resolvers {
		m.resolvers[r.Channel()] = r
	}
	return m
}

// Send routes to the resolver registered for out.Channel.
func (m *MultiResolver) Send(ctx context.Context, out models.OutboundMessage) error {
	r, ok := m.resolvers[out.Channel]
	if !ok {
		return fmt.Errorf("channels: no resolver registered for channel %q", out.Channel)
	}
	return r.Send(ctx, out)
}

// IsHealthy reports the named channel's health, or false if unregistered.
func (m *MultiResolver) IsHealthy(channel string) bool {
	r, ok := m.resolvers[channel]
	if !ok {
		return false
	}
	return r.IsHealthy()
}

// StartAll starts every registered resolver that implements LifecycleAdapter.
func (m *MultiResolver) StartAll(ctx context.Context) error {
	for _, r := range m.resolvers {
		if lifecycle, ok := r.(LifecycleAdapter); ok {
			if err := lifecycle.Start(ctx); err != nil {
				return fmt.Errorf("channels: start %s: %w", r.Channel(), err)
			}
		}
	}
	return nil
}

// StopAll stops every registered resolver that implements LifecycleAdapter,
// continuing past individual failures and returning the last one seen.
func (m *MultiResolver) StopAll(ctx context.Context) error {
	var lastErr error
	for _, r := range m.resolvers {
		if lifecycle, ok := r.(LifecycleAdapter); ok {
			if err := lifecycle.Stop(ctx); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}
