package memory

import (
	"testing"

	"github.com/nexuscore/nexus-core/pkg/models"
)

func TestDefaultTokenCounter(t *testing.T) {
	t.Run("nil message", func(t *testing.T) {
		if n := DefaultTokenCounter(nil); n != 0 {
			t.Errorf("DefaultTokenCounter(nil) = %d, want 0", n)
		}
	})

	t.Run("content length drives estimate", func(t *testing.T) {
		short := &models.Message{Content: "hi"}
		long := &models.Message{Content: "this is a much longer message body"}
		if DefaultTokenCounter(short) >= DefaultTokenCounter(long) {
			t.Error("expected longer content to estimate more tokens")
		}
	})
}

func TestFitToContextWindow_PassThrough(t *testing.T) {
	messages := []*models.Message{
		{Content: "short"},
		{Content: "also short"},
	}

	result, fits, total := FitToContextWindow(messages, DefaultTokenCounter, 200000, 4000)
	if !fits {
		t.Error("expected small message list to fit")
	}
	if len(result) != len(messages) {
		t.Errorf("result length = %d, want %d", len(result), len(messages))
	}
	if total <= 0 {
		t.Error("expected positive total token count")
	}
}

func TestFitToContextWindow_Idempotent(t *testing.T) {
	messages := []*models.Message{{Content: "a"}, {Content: "b"}}

	r1, fits1, _ := FitToContextWindow(messages, DefaultTokenCounter, 200000, 4000)
	r2, fits2, _ := FitToContextWindow(r1, DefaultTokenCounter, 200000, 4000)

	if fits1 != fits2 || len(r1) != len(r2) {
		t.Error("expected FitToContextWindow to be idempotent on a list that already fits")
	}
}

func TestFitToContextWindow_ExceedsBudget(t *testing.T) {
	messages := make([]*models.Message, 0, 100)
	for i := 0; i < 100; i++ {
		messages = append(messages, &models.Message{Content: "padding content to inflate the token estimate well beyond a tiny budget"})
	}

	_, fits, total := FitToContextWindow(messages, DefaultTokenCounter, 100, 50)
	if fits {
		t.Error("expected large message list to exceed a tiny budget")
	}
	if total <= 50 {
		t.Error("expected total to exceed available budget")
	}
}
