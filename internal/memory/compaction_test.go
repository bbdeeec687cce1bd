package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nexuscore/nexus-core/pkg/models"
)

func fixedSummarizer(summary string) Summarizer {
	return func(ctx context.Context, messages []*models.Message) (string, error) {
		return summary, nil
	}
}

func TestCompact_Disabled(t *testing.T) {
	_, _, err := Compact(context.Background(), "sess-1", makeMessages(10), false, fixedSummarizer("x"), nil)
	if !errors.Is(err, ErrCompactionDisabled) {
		t.Errorf("err = %v, want ErrCompactionDisabled", err)
	}
}

func TestCompact_NoSummarizer(t *testing.T) {
	_, _, err := Compact(context.Background(), "sess-1", makeMessages(10), true, nil, nil)
	if !errors.Is(err, ErrNoSummarizer) {
		t.Errorf("err = %v, want ErrNoSummarizer", err)
	}
}

func TestCompact_ShortHistoryUnchanged(t *testing.T) {
	messages := makeMessages(3)
	result, entry, err := Compact(context.Background(), "sess-1", messages, true, fixedSummarizer("summary"), nil)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	if len(result) != len(messages) {
		t.Errorf("expected unchanged history when len <= keepLastN, got %d messages", len(result))
	}
	if entry.MessagesCompacted != 0 {
		t.Errorf("expected 0 messages compacted, got %d", entry.MessagesCompacted)
	}
}

func TestCompact_ReplacesAllButLastFour(t *testing.T) {
	messages := makeMessages(20)

	result, entry, err := Compact(context.Background(), "sess-1", messages, true, fixedSummarizer("durable facts"), nil)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}

	// 1 summary message + last 4 original messages.
	if len(result) != 5 {
		t.Fatalf("len(result) = %d, want 5", len(result))
	}

	if result[0].Role != models.RoleSystem {
		t.Errorf("expected summary message to have role system, got %q", result[0].Role)
	}
	if result[0].Content != compactionPlaceholder+"durable facts" {
		t.Errorf("summary content = %q", result[0].Content)
	}

	for i := 0; i < 4; i++ {
		if result[i+1] != messages[len(messages)-4+i] {
			t.Errorf("expected last 4 original messages preserved in order at index %d", i+1)
		}
	}

	if entry.MessagesCompacted != 16 {
		t.Errorf("MessagesCompacted = %d, want 16", entry.MessagesCompacted)
	}
	if entry.Summary != "durable facts" {
		t.Errorf("Summary = %q, want %q", entry.Summary, "durable facts")
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", entry.SessionID)
	}
}

func TestCompact_SummarizerError(t *testing.T) {
	boom := errors.New("summarizer failed")
	summarizer := func(ctx context.Context, messages []*models.Message) (string, error) {
		return "", boom
	}

	_, _, err := Compact(context.Background(), "sess-1", makeMessages(20), true, summarizer, nil)
	if err == nil {
		t.Fatal("expected error when summarizer fails")
	}
}

func TestCompact_TokensRecovered(t *testing.T) {
	messages := makeMessages(20)
	counter := func(m *models.Message) int { return 100 }

	_, entry, err := Compact(context.Background(), "sess-1", messages, true, fixedSummarizer("s"), counter)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}

	if entry.TokensRecovered <= 0 {
		t.Errorf("TokensRecovered = %d, want > 0", entry.TokensRecovered)
	}
}
