package llm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

func chunks(cs ...llm.Chunk) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, len(cs))
	for _, c := range cs {
		ch <- c
	}
	close(ch)
	return ch
}

func TestCollect_Concatenates(t *testing.T) {
	got, err := llm.Collect(context.Background(), chunks(
		llm.Chunk{Text: "Hola"},
		llm.Chunk{Text: ""},
		llm.Chunk{Text: ", ¿qué tal?"},
		llm.Chunk{FinishReason: "stop"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hola, ¿qué tal?" {
		t.Errorf("Collect = %q, want %q", got, "Hola, ¿qué tal?")
	}
}

func TestCollect_ErrorChunk(t *testing.T) {
	_, err := llm.Collect(context.Background(), chunks(
		llm.Chunk{Text: "partial"},
		llm.Chunk{FinishReason: llm.FinishReasonError, Text: "rate limited"},
		llm.Chunk{Text: "ignored"},
	))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to mention the provider message", err)
	}
}

func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := make(chan llm.Chunk)
	if _, err := llm.Collect(ctx, never); err == nil {
		t.Fatal("expected context error, got nil")
	}
}
