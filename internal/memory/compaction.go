package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// Summarizer condenses a message history down to a single summary string.
// It is typically backed by an LLM call through a Provider, but the memory
// package only depends on this narrow function signature.
type Summarizer func(ctx context.Context, messages []*models.Message) (string, error)

// keepLastN is the number of trailing messages L3 compaction never drops.
const keepLastN = 4

// compactionPlaceholder prefixes the summary that replaces compacted history.
const compactionPlaceholder = "[Compacted conversation summary]\n"

// ErrCompactionDisabled is returned when Compact is called for a session
// whose memory config has compaction turned off.
var ErrCompactionDisabled = fmt.Errorf("memory: compaction is disabled")

// ErrNoSummarizer is returned when Compact is called without a Summarizer.
var ErrNoSummarizer = fmt.Errorf("memory: no summarizer configured")

// Compact is Memory Manager L3: an explicit call (never triggered
// automatically by L1/L2) that replaces all but the last keepLastN messages
// with a single system message carrying the summarizer's output. Returns the
// new message slice and a CompactionEntry recording how much was recovered.
//
// Invariant: the last 4 messages are never dropped, even when the entire
// history is shorter than that -- in that case there's nothing to compact
// and Compact returns the input unchanged with an empty CompactionEntry.
func Compact(ctx context.Context, sessionID string, messages []*models.Message, enabled bool, summarizer Summarizer, counter TokenCounter) ([]*models.Message, *models.CompactionEntry, error) {
	if !enabled {
		return nil, nil, ErrCompactionDisabled
	}
	if summarizer == nil {
		return nil, nil, ErrNoSummarizer
	}
	if counter == nil {
		counter = DefaultTokenCounter
	}

	if len(messages) <= keepLastN {
		return messages, &models.CompactionEntry{SessionID: sessionID, CreatedAt: time.Now()}, nil
	}

	toCompact := messages[:len(messages)-keepLastN]
	tail := messages[len(messages)-keepLastN:]

	summary, err := summarizer(ctx, toCompact)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: summarize for compaction: %w", err)
	}

	originalTokens := sumTokens(messages, counter)

	summaryMsg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   compactionPlaceholder + summary,
		CreatedAt: time.Now(),
	}

	compacted := make([]*models.Message, 0, len(tail)+1)
	compacted = append(compacted, summaryMsg)
	compacted = append(compacted, tail...)

	compactedTokens := sumTokens(compacted, counter)

	entry := &models.CompactionEntry{
		SessionID:         sessionID,
		Summary:           summary,
		MessagesCompacted: len(toCompact),
		TokensRecovered:   originalTokens - compactedTokens,
		CreatedAt:         time.Now(),
	}

	return compacted, entry, nil
}
