package stt

import "github.com/MrWong99/voxcall/pkg/audio"

// Defaults used by [SpeechGate] when a field is left zero.
const (
	// DefaultMinPCMBytes is the smallest raw PCM chunk worth sending to a
	// recogniser: a quarter second at 16 kHz. Shorter chunks make hosted
	// Whisper reject the request.
	DefaultMinPCMBytes = 8_000

	// DefaultRMSThreshold is the normalised RMS energy below which audio is
	// treated as silence. Whisper hallucinates text on silent input.
	DefaultRMSThreshold = 0.01
)

// SpeechGate decides whether a chunk of call audio is worth transcribing and
// wraps raw PCM in a WAV container for providers that require a file upload.
type SpeechGate struct {
	// MinPCMBytes rejects raw PCM shorter than this. WAV input is never
	// rejected for length. Zero selects DefaultMinPCMBytes; a negative value
	// disables the check.
	MinPCMBytes int

	// RMSThreshold rejects audio whose normalised RMS is below it. Zero
	// selects DefaultRMSThreshold; a negative value disables the check.
	RMSThreshold float64
}

// PrepareWAV returns audio as a WAV container and true when it should be
// transcribed. It returns false for empty, too short or silent input.
func (g SpeechGate) PrepareWAV(in []byte, cfg StreamConfig) ([]byte, bool) {
	if len(in) == 0 {
		return nil, false
	}
	minBytes := g.MinPCMBytes
	if minBytes == 0 {
		minBytes = DefaultMinPCMBytes
	}
	threshold := g.RMSThreshold
	if threshold == 0 {
		threshold = DefaultRMSThreshold
	}

	isWAV := audio.IsWAV(in)
	if !isWAV && minBytes > 0 && len(in) < minBytes {
		return nil, false
	}

	wav := in
	if !isWAV {
		channels := cfg.Channels
		if channels <= 0 {
			channels = 1
		}
		wav = audio.EncodeWAV(in, cfg.SampleRate, channels)
		if wav == nil {
			return nil, false
		}
	}

	if threshold > 0 && audio.NormalizedRMS(in) < threshold {
		return nil, false
	}
	return wav, true
}
