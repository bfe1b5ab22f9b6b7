// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Whisper on Groq, a local
// whisper.cpp server, or Google Cloud Speech) and turns one complete utterance
// of audio into text. Transcription is one-shot: the caller hands over the
// whole chunk and receives the final transcript.
//
// Providers may decide that audio is too short or too quiet to be speech. They
// signal that by returning an empty string and a nil error; callers must treat
// an empty transcript as "no speech detected", never as a failure.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition language of a
// transcription request.
type StreamConfig struct {
	// Language is the BCP-47 language tag for recognition (e.g., "es-MX").
	// Providers that only accept ISO-639-1 codes use the part before "-".
	Language string

	// SampleRate is the audio sample rate in Hz: 16000 for the browser
	// simulator, 8000 for telephony.
	SampleRate int

	// Channels is the number of audio channels. Always 1 for call audio.
	Channels int
}

// BaseLanguage returns the ISO-639-1 part of Language ("es-MX" → "es").
// Returns fallback when Language is empty.
func (c StreamConfig) BaseLanguage(fallback string) string {
	if c.Language == "" {
		return fallback
	}
	for i := 0; i < len(c.Language); i++ {
		if c.Language[i] == '-' || c.Language[i] == '_' {
			return c.Language[:i]
		}
	}
	return c.Language
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts audio to text. audio is either raw PCM matching cfg
	// or a complete WAV container.
	//
	// Returns "" with a nil error when no speech was recognised. Returns an
	// error only when the provider call itself failed.
	Transcribe(ctx context.Context, audio []byte, cfg StreamConfig) (string, error)
}
