package resilience

import (
	"context"

	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] over several STT backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Transcribe implements [stt.Provider]. An empty transcript is a success and
// does not fail over.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio, cfg)
	})
}

// States reports the breaker state per backend.
func (f *STTFallback) States() map[string]State { return f.group.States() }
