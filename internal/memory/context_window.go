package memory

import "github.com/nexuscore/nexus-core/pkg/models"

// TokenCounter estimates the token cost of a single message. Callers
// typically adapt their chosen provider's CountTokens (see
// internal/providers.Provider) down to this per-message shape, or fall back
// to DefaultTokenCounter.
type TokenCounter func(msg *models.Message) int

// DefaultTokenCounter estimates tokens at roughly 4 characters per token,
// the same rough heuristic internal/providers adapters use when a vendor
// doesn't expose an exact tokenizer.
func DefaultTokenCounter(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range msg.ToolResults {
		chars += len(tr.Content)
	}
	return chars/4 + 1
}

// sumTokens adds up TokenCounter(m) for every message in messages.
func sumTokens(messages []*models.Message, counter TokenCounter) int {
	total := 0
	for _, m := range messages {
		total += counter(m)
	}
	return total
}

// FitToContextWindow is Memory Manager L1. Available budget is
// contextWindowSize - reserveTokens; if the message list already fits, it is
// returned unchanged (fits=true) so later layers (L2 pruning) are skipped.
// Idempotent: calling FitToContextWindow again on a list that already fits
// returns it unchanged.
func FitToContextWindow(messages []*models.Message, counter TokenCounter, contextWindowSize, reserveTokens int) (result []*models.Message, fits bool, total int) {
	if counter == nil {
		counter = DefaultTokenCounter
	}
	total = sumTokens(messages, counter)
	available := contextWindowSize - reserveTokens
	if total <= available {
		return messages, true, total
	}
	return messages, false, total
}
