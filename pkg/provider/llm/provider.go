// Package llm is the chat model contract the call pipeline and the post-call
// extractor talk to. Adapters live in the subpackages.
package llm

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError marks a [Chunk] whose Text is a provider error raised
// after the stream opened.
const FinishReasonError = "error"

type Message struct {
	Role    string // one of the Role constants
	Content string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one model call. Zero numeric fields keep the
// provider's defaults.
type CompletionRequest struct {
	// Messages is the conversation, oldest first. It must not be empty.
	Messages []Message

	// SystemPrompt, when set, is sent ahead of Messages.
	SystemPrompt string

	// Model replaces the provider's configured model.
	Model       string
	Temperature float64
	MaxTokens   int

	// JSONMode requests a single JSON object. Adapters without native
	// support drop it, so the prompt has to ask for JSON as well.
	JSONMode bool
}

// Chunk is one streamed fragment. FinishReason is empty until the last
// chunk, which carries "stop", "length" or [FinishReasonError].
type Chunk struct {
	Text         string
	FinishReason string
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is a chat model backend. Implementations are safe for concurrent
// use and stop promptly once ctx is done.
type Provider interface {
	// StreamCompletion starts a streamed reply. The error return covers
	// failures before the first byte, such as bad credentials; later ones
	// arrive as a [FinishReasonError] chunk. The channel is never nil on
	// success, is always closed by the provider and must be drained.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete waits for the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains ch and concatenates the non-empty chunk texts in arrival
// order. A chunk with FinishReason [FinishReasonError] aborts collection and
// is returned as an error after the channel has been drained. If ctx ends
// before the channel closes, ctx.Err() is returned.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var (
		sb     strings.Builder
		errMsg string
		failed bool
	)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				if failed {
					return "", errors.New("llm: stream failed: " + errMsg)
				}
				if err := ctx.Err(); err != nil {
					return "", err
				}
				return sb.String(), nil
			}
			if failed {
				continue
			}
			if c.FinishReason == FinishReasonError {
				failed, errMsg = true, c.Text
				continue
			}
			if c.Text != "" {
				sb.WriteString(c.Text)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
