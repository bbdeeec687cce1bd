package memory

import (
	"fmt"
	"testing"

	"github.com/nexuscore/nexus-core/pkg/models"
)

func makeMessages(n int) []*models.Message {
	msgs := make([]*models.Message, n)
	for i := 0; i < n; i++ {
		msgs[i] = &models.Message{Content: fmt.Sprintf("message-%d", i)}
	}
	return msgs
}

func TestPruneMessages_TurnBased(t *testing.T) {
	messages := makeMessages(20)

	result := PruneMessages(messages, models.PruningTurnBased, 10, nil, 0)

	// keep = max(2, floor(10/2)) = 5, so head 5 + tail 5 = 10.
	if len(result) != 10 {
		t.Fatalf("len(result) = %d, want 10", len(result))
	}
	if result[0] != messages[0] {
		t.Error("expected first message preserved")
	}
	if result[len(result)-1] != messages[len(messages)-1] {
		t.Error("expected last message preserved")
	}
}

func TestPruneMessages_TurnBased_MinKeepTwo(t *testing.T) {
	messages := makeMessages(20)

	// maxTurns=1 => floor(1/2)=0, clamped to 2.
	result := PruneMessages(messages, models.PruningTurnBased, 1, nil, 0)
	if len(result) != 4 {
		t.Fatalf("len(result) = %d, want 4 (head 2 + tail 2)", len(result))
	}
}

func TestPruneMessages_TurnBased_ShortList(t *testing.T) {
	messages := makeMessages(3)
	result := PruneMessages(messages, models.PruningTurnBased, 10, nil, 0)
	if len(result) != 3 {
		t.Errorf("expected short list returned unchanged, got %d messages", len(result))
	}
}

func TestPruneMessages_TokenBased_PreservesFirst(t *testing.T) {
	messages := makeMessages(50)
	counter := func(m *models.Message) int { return 10 }

	result := PruneMessages(messages, models.PruningTokenBased, 0, counter, 25)

	if len(result) == 0 {
		t.Fatal("expected at least the anchor message")
	}
	if result[0] != messages[0] {
		t.Error("expected first message (system anchor) preserved")
	}
}

func TestPruneMessages_TokenBased_RespectsBudget(t *testing.T) {
	messages := makeMessages(50)
	counter := func(m *models.Message) int { return 10 }

	// Budget of 35: anchor costs 10, leaving 25 for two more messages (20),
	// a third would push to 30 which is within 35, so three plus anchor.
	result := PruneMessages(messages, models.PruningTokenBased, 0, counter, 35)

	total := 0
	for _, m := range result {
		total += counter(m)
	}
	if total > 35 {
		t.Errorf("total tokens = %d, exceeds budget of 35", total)
	}
}

func TestPruneMessages_TokenBased_NewestFirst(t *testing.T) {
	messages := makeMessages(10)
	counter := func(m *models.Message) int { return 10 }

	// Budget only allows the anchor plus the single newest message.
	result := PruneMessages(messages, models.PruningTokenBased, 0, counter, 20)

	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	if result[0] != messages[0] {
		t.Error("expected anchor message first")
	}
	if result[1] != messages[len(messages)-1] {
		t.Error("expected newest message kept, in chronological order after the anchor")
	}
}

func TestPruneMessages_Empty(t *testing.T) {
	result := PruneMessages(nil, models.PruningTokenBased, 10, nil, 100)
	if result != nil {
		t.Errorf("expected nil result for empty input, got %v", result)
	}
}
