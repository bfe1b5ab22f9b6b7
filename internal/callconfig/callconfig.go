// Package callconfig resolves the per-call configuration of a voice agent.
//
// A [CallConfig] is built once when a call starts, from an [Agent] profile and
// the client type of the connection, and is never mutated afterwards. The
// [ConfigPort] interface abstracts where agent profiles come from: the YAML
// file ([StaticSource]) or the agent_configs table in PostgreSQL.
//
// [VoiceConfig] is the validated subset of the voice parameters handed to the
// TTS provider. Construction rejects out-of-range values instead of clamping
// them.
package callconfig

import (
	"github.com/MrWong99/voxcall/pkg/audio"
)

// First-message modes.
const (
	ModeSpeakFirst  = "speak-first"
	ModeWaitForUser = "wait-for-user"
)

// DefaultAgentID is used when a connection does not name an agent.
const DefaultAgentID = 1

const (
	defaultLanguage  = "es-MX"
	defaultVoiceName = "es-MX-DaliaNeural"
)

// Defaults applied when an agent profile leaves a value unset or zero.
const (
	DefaultLLMProvider      = "groq"
	DefaultLLMModel         = "llama-3.3-70b-versatile"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 600
	DefaultVoiceName        = defaultVoiceName
	DefaultVoiceLanguage    = defaultLanguage
	DefaultVoiceSpeed       = 1.0
	DefaultVoiceVolume      = 100
	DefaultVoiceStyle       = "default"
	DefaultSTTLanguage      = defaultLanguage
	DefaultSilenceTimeoutMs = 1000
	DefaultMaxDuration      = 600
	DefaultIdleTimeout      = 30.0
	DefaultApologyMessage   = "Lo sentimos, hemos tenido un problema. La llamada terminará."
)

// CallConfig is everything the orchestrator needs for one call session.
type CallConfig struct {
	ClientType string
	AgentID    int

	// LLM. LLMProvider selects among the configured LLM providers by name;
	// an unknown name keeps the process default.
	LLMProvider      string
	LLMModel         string
	Temperature      float64
	MaxTokens        int
	SystemPrompt     string
	FirstMessage     string
	FirstMessageMode string

	// Voice
	VoiceName     string
	VoiceLanguage string
	VoiceSpeed    float64
	VoicePitch    int
	VoiceVolume   int
	VoiceStyle    string

	// STT. SilenceTimeoutMs and VoicePacingMs are carried for the
	// telephony client and persisted profiles; turn-taking is decided by
	// the client, so the orchestrator does not read them.
	STTLanguage      string
	SampleRate       int
	SilenceTimeoutMs int
	VoicePacingMs    int

	// Behaviour. MaxDuration (seconds) and IdleTimeout (seconds) are
	// carried for the telephony provider's call limits and are not enforced
	// here.
	MaxDuration    int
	IdleTimeout    float64
	ApologyMessage string
}

// Default returns the configuration used for clientType when an agent
// defines nothing.
func Default(clientType string) CallConfig {
	return Resolve(Agent{ID: DefaultAgentID}, clientType)
}

// SpeaksFirst reports whether the agent greets the caller before they speak.
func (c CallConfig) SpeaksFirst() bool {
	return c.FirstMessageMode != ModeWaitForUser && c.FirstMessage != ""
}

// AudioFormat returns the wire audio format of the call's client type.
func (c CallConfig) AudioFormat() audio.Config {
	return audio.ConfigFor(c.ClientType)
}
