// Package mock provides a recording [transport.Transport] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxcall/internal/transport"
)

// AudioCall records one SendAudio invocation.
type AudioCall struct {
	Data       []byte
	SampleRate int
}

// Transport is a mock implementation of [transport.Transport]. A zero value
// is connected until Close is called.
type Transport struct {
	mu sync.Mutex

	// OnSendAudio, when non-nil, is invoked for every SendAudio call while
	// connected.
	OnSendAudio func(data []byte)

	Audio      []AudioCall
	JSON       []any
	StreamID   string
	CloseCount int
}

var _ transport.Transport = (*Transport)(nil)

// SendAudio implements [transport.Transport]. Calls after Close are ignored.
func (t *Transport) SendAudio(_ context.Context, data []byte, sampleRate int) {
	t.mu.Lock()
	if t.CloseCount > 0 {
		t.mu.Unlock()
		return
	}
	t.Audio = append(t.Audio, AudioCall{Data: slices.Clone(data), SampleRate: sampleRate})
	hook := t.OnSendAudio
	t.mu.Unlock()
	if hook != nil {
		hook(data)
	}
}

// SendJSON implements [transport.Transport]. Calls after Close are ignored.
func (t *Transport) SendJSON(_ context.Context, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CloseCount > 0 {
		return
	}
	t.JSON = append(t.JSON, v)
}

// SetStreamID implements [transport.Transport].
func (t *Transport) SetStreamID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StreamID = id
}

// Close implements [transport.Transport]. Every call is counted.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCount++
}

// IsConnected implements [transport.Transport].
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CloseCount == 0
}

// AudioCount returns the number of recorded SendAudio calls.
func (t *Transport) AudioCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Audio)
}

// Closes returns how many times Close was called.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CloseCount
}
