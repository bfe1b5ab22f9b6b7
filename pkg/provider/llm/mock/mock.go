// Package mock is a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{StreamReplies: []string{"Hola", "Hasta luego"}}
//
// answers the first streamed request with "Hola" and the second with
// "Hasta luego".
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

// Call is one recorded request. Req.Messages is copied when the call is made.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider replays scripted answers and records every request. Set the
// script fields before the first call; read the records after the code under
// test is done, or through the accessor methods while it runs.
type Provider struct {
	mu sync.Mutex

	// StreamReplies is consumed one entry per StreamCompletion call; each
	// entry becomes a text chunk and a "stop" chunk. When it runs out,
	// StreamChunks is replayed instead.
	StreamReplies []string
	StreamChunks  []llm.Chunk
	StreamErr     error

	// CompleteResponse may be nil.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	StreamCalls   []Call
	CompleteCalls []Call
}

var _ llm.Provider = (*Provider)(nil)

func record(calls *[]Call, ctx context.Context, req llm.CompletionRequest) {
	req.Messages = slices.Clone(req.Messages)
	*calls = append(*calls, Call{Ctx: ctx, Req: req})
}

// StreamCompletion returns StreamErr, or a channel fed with the next script.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	record(&p.StreamCalls, ctx, req)
	if p.StreamErr != nil {
		defer p.mu.Unlock()
		return nil, p.StreamErr
	}
	script := slices.Clone(p.StreamChunks)
	if len(p.StreamReplies) > 0 {
		script = []llm.Chunk{{Text: p.StreamReplies[0]}, {FinishReason: "stop"}}
		p.StreamReplies = p.StreamReplies[1:]
	}
	p.mu.Unlock()

	out := make(chan llm.Chunk, len(script))
	go func() {
		defer close(out)
		for _, c := range script {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Complete returns CompleteResponse and CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record(&p.CompleteCalls, ctx, req)
	return p.CompleteResponse, p.CompleteErr
}

func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// Reset forgets recorded calls. Scripts are left alone.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls, p.CompleteCalls = nil, nil
}
