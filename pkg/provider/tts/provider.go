// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Azure Speech or
// ElevenLabs) and turns one complete reply into audio in a single call. The
// output encoding follows [Request.Format]: 16 kHz 16-bit PCM for the browser
// simulator and 8 kHz mu-law for telephony carriers.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// Request is a single synthesis request. Voice parameters are expected to be
// validated by the caller; providers map them onto their own controls and
// ignore the ones they cannot express.
type Request struct {
	// Text is the plain text to speak.
	Text string

	// VoiceID is the provider-specific voice identifier (e.g., "es-MX-DaliaNeural").
	VoiceID string

	// Language is the BCP-47 language tag of the text (e.g., "es-MX").
	Language string

	// Speed is the speaking-rate multiplier (1.0 = normal).
	Speed float64

	// Pitch is the pitch shift in Hz (0 = unchanged).
	Pitch int

	// Volume is the loudness in percent (0-100).
	Volume int

	// Style is an expressive speaking style ("default" for none).
	Style string

	// StyleDegree scales the intensity of Style.
	StyleDegree float64

	// Format selects the output encoding. A zero value means 16 kHz PCM.
	Format audio.Config
}

// OutputFormat returns the request format with zero values filled in.
func (r Request) OutputFormat() audio.Config {
	if r.Format.SampleRate == 0 {
		return audio.ConfigFor(audio.ClientBrowser)
	}
	return r.Format
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text and returns the complete audio. An empty
	// result with a nil error means the provider produced no audio; callers
	// treat that as "nothing to play".
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
