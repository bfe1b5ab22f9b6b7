package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxcall/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxcall/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hola"}}

	fb := NewLLMFallback(primary, "groq", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hola" {
		t.Errorf("content = %q, want %q", resp.Content, "hola")
	}
	if len(primary.CompleteCalls) != 1 || len(secondary.CompleteCalls) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(primary.CompleteCalls), len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_StreamCompletion(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{StreamErr: errors.New("unauthorized")}
	secondary := &llmmock.Provider{StreamReplies: []string{"buenos días"}}

	fb := NewLLMFallback(primary, "groq", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "buenos días" {
		t.Errorf("text = %q, want %q", text, "buenos días")
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{CompleteErr: errors.New("b")})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if got := fb.States(); len(got) != 2 {
		t.Errorf("States = %v, want 2 entries", got)
	}
}
