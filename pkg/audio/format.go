// Package audio holds the audio helpers shared by providers and transports:
// the per-client wire format, WAV container handling, signal energy and
// 16-bit PCM resampling.
//
// No codec transcoding happens here. Telephony audio stays mu-law end to end;
// providers are asked for the format the client expects.
package audio

import "strings"

// Encoding is the sample encoding of a client's audio stream.
type Encoding string

const (
	EncodingPCM   Encoding = "pcm"
	EncodingMulaw Encoding = "mulaw"
)

// Client types understood by [ConfigFor].
const (
	ClientBrowser = "browser"
	ClientTwilio  = "twilio"
	ClientTelnyx  = "telnyx"
)

// Config is the wire audio format of one client type.
type Config struct {
	SampleRate int
	Encoding   Encoding
	BitDepth   int
}

// IsTelephony reports whether the format is the 8 kHz mu-law used by phone
// carriers.
func (c Config) IsTelephony() bool { return c.Encoding == EncodingMulaw }

// ConfigFor returns the audio format for clientType. The browser simulator
// speaks 16 kHz 16-bit PCM; every telephony carrier speaks 8 kHz mu-law.
// Unknown client types are treated as telephony.
func ConfigFor(clientType string) Config {
	if strings.EqualFold(clientType, ClientBrowser) {
		return Config{SampleRate: 16000, Encoding: EncodingPCM, BitDepth: 16}
	}
	return Config{SampleRate: 8000, Encoding: EncodingMulaw, BitDepth: 8}
}

// SampleRateFor is shorthand for ConfigFor(clientType).SampleRate.
func SampleRateFor(clientType string) int {
	return ConfigFor(clientType).SampleRate
}
