package memory

import "github.com/nexuscore/nexus-core/pkg/models"

// PruneMessages is Memory Manager L2. It runs after L1 determines the
// message list no longer fits the context window.
//
// Strategy turn-based: keep = max(2, floor(maxTurns/2)); returns the head
// keep messages plus the tail keep messages, dropping the middle.
//
// Strategy token-based: message[0] is kept unconditionally as the system
// anchor; the rest is walked from newest to oldest, adding messages while
// the running token sum stays within budget.
//
// Invariant: the first message is always preserved, matching the turn
// loop's convention of treating it as a system anchor.
func PruneMessages(messages []*models.Message, strategy models.PruningStrategy, maxTurns int, counter TokenCounter, budget int) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	if counter == nil {
		counter = DefaultTokenCounter
	}

	switch strategy {
	case models.PruningTurnBased:
		return pruneTurnBased(messages, maxTurns)
	case models.PruningTokenBased:
		return pruneTokenBased(messages, counter, budget)
	default:
		return pruneTokenBased(messages, counter, budget)
	}
}

func pruneTurnBased(messages []*models.Message, maxTurns int) []*models.Message {
	keep := maxTurns / 2
	if keep < 2 {
		keep = 2
	}
	if len(messages) <= keep*2 {
		return messages
	}

	result := make([]*models.Message, 0, keep*2)
	result = append(result, messages[:keep]...)
	result = append(result, messages[len(messages)-keep:]...)
	return result
}

func pruneTokenBased(messages []*models.Message, counter TokenCounter, budget int) []*models.Message {
	if len(messages) == 0 {
		return messages
	}

	anchor := messages[0]
	rest := messages[1:]

	used := counter(anchor)
	kept := make([]*models.Message, 0, len(rest))

	// Walk newest to oldest, adding while the rolling sum stays under budget.
	for i := len(rest) - 1; i >= 0; i-- {
		cost := counter(rest[i])
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, rest[i])
	}

	// kept was built newest-first; reverse to restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]*models.Message, 0, len(kept)+1)
	result = append(result, anchor)
	result = append(result, kept...)
	return result
}
