// Package frame defines the typed units of data that flow through a call
// pipeline.
//
// A frame is either audio (raw bytes from a caller or synthesized speech) or
// text (a user transcript or an assistant reply). Every frame carries a trace
// identifier and a creation timestamp. Frames derived from another frame keep
// the trace identifier and timestamp of their source so a whole turn can be
// correlated in logs.
//
// Frames are values and are never mutated after construction.
package frame

import (
	"time"

	"github.com/google/uuid"
)

// Default audio parameters applied by [NewAudioFrame] for zero values.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// Role identifies the speaker of a [TextFrame].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Frame is implemented by every pipeline data unit.
type Frame interface {
	// TraceID returns the opaque correlation identifier of the frame chain.
	TraceID() string

	// Timestamp returns the instant the frame chain was started.
	Timestamp() time.Time
}

// Meta is embedded in every concrete frame and implements [Frame].
type Meta struct {
	ID      string
	Created time.Time
}

// NewMeta returns metadata with a fresh trace identifier.
func NewMeta() Meta {
	return Meta{ID: uuid.NewString(), Created: time.Now()}
}

// TraceID implements [Frame].
func (m Meta) TraceID() string { return m.ID }

// Timestamp implements [Frame].
func (m Meta) Timestamp() time.Time { return m.Created }

// MetaOf returns the metadata of f so that a derived frame can propagate it.
// A nil frame yields fresh metadata.
func MetaOf(f Frame) Meta {
	if f == nil {
		return NewMeta()
	}
	return Meta{ID: f.TraceID(), Created: f.Timestamp()}
}

// AudioFrame carries raw audio. The encoding depends on the client: 16-bit
// PCM mono for the browser, 8-bit mu-law mono for telephony.
type AudioFrame struct {
	Meta
	Data       []byte
	SampleRate int
	Channels   int
}

// NewAudioFrame wraps data in a new AudioFrame with a fresh trace identifier.
// A zero sampleRate defaults to [DefaultSampleRate].
func NewAudioFrame(data []byte, sampleRate int) AudioFrame {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return AudioFrame{
		Meta:       NewMeta(),
		Data:       data,
		SampleRate: sampleRate,
		Channels:   DefaultChannels,
	}
}

// TextFrame carries a transcript or an assistant reply.
type TextFrame struct {
	Meta
	Text string
	Role Role
}

// NewTextFrame returns a TextFrame that continues the chain of parent.
func NewTextFrame(parent Frame, text string, role Role) TextFrame {
	return TextFrame{Meta: MetaOf(parent), Text: text, Role: role}
}

// Compile-time interface checks.
var (
	_ Frame = AudioFrame{}
	_ Frame = TextFrame{}
)
