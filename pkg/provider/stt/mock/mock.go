// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Responses: []string{"hola", "adiós"}}
//	text, _ := p.Transcribe(ctx, pcm, cfg) // "hola"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio passed to Transcribe.
	Audio []byte
	// Cfg is the StreamConfig passed to Transcribe.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Transcribe calls in order. Once
	// exhausted, Text is returned.
	Responses []string

	// Text is returned by Transcribe when Responses is empty.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: append([]byte(nil), audio...), Cfg: cfg})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) > 0 {
		text := p.Responses[0]
		p.Responses = p.Responses[1:]
		return text, nil
	}
	return p.Text, nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
