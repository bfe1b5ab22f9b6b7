// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to the pipeline and to verify the
// voice parameters handed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte{0x01, 0x02}}
//	data, _ := p.Synthesize(ctx, tts.Request{Text: "Hola", VoiceID: "es-MX-DaliaNeural"})
package mock

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses, when non-empty, scripts successive Synthesize calls. Once
	// exhausted, Audio is returned.
	Responses [][]byte

	// Audio is returned by Synthesize when Responses is exhausted.
	Audio []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// FailText, if non-empty, makes Synthesize fail with Err (or a generic
	// error) only for requests whose Text equals FailText.
	FailText string

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// ErrSynthesis is returned for FailText matches when Err is nil.
var ErrSynthesis = errors.New("mock tts: synthesis failed")

// Synthesize records the call and returns the scripted audio or error.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	if p.FailText != "" {
		if req.Text != p.FailText {
			return p.next(), nil
		}
		if p.Err != nil {
			return nil, p.Err
		}
		return nil, ErrSynthesis
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.next(), nil
}

func (p *Provider) next() []byte {
	if len(p.Responses) > 0 {
		out := p.Responses[0]
		p.Responses = p.Responses[1:]
		return slices.Clone(out)
	}
	return slices.Clone(p.Audio)
}

// CallCount returns the number of recorded Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Texts returns the Text of every recorded request in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Req.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
