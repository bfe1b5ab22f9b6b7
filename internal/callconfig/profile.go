package callconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// AgentProfile holds the tunable settings of an agent. Zero values mean
// "unset" and fall back to the package defaults during [Resolve]; a profile
// therefore cannot request a temperature of 0 or a volume of 0.
type AgentProfile struct {
	LLMProvider      string  `yaml:"llm_provider,omitempty" json:"llm_provider,omitempty"`
	LLMModel         string  `yaml:"llm_model,omitempty" json:"llm_model,omitempty"`
	Temperature      float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens        int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	SystemPrompt     string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	FirstMessage     string  `yaml:"first_message,omitempty" json:"first_message,omitempty"`
	FirstMessageMode string  `yaml:"first_message_mode,omitempty" json:"first_message_mode,omitempty"`

	VoiceName     string  `yaml:"voice_name,omitempty" json:"voice_name,omitempty"`
	VoiceLanguage string  `yaml:"voice_language,omitempty" json:"voice_language,omitempty"`
	VoiceSpeed    float64 `yaml:"voice_speed,omitempty" json:"voice_speed,omitempty"`
	VoicePitch    int     `yaml:"voice_pitch,omitempty" json:"voice_pitch,omitempty"`
	VoiceVolume   int     `yaml:"voice_volume,omitempty" json:"voice_volume,omitempty"`
	VoiceStyle    string  `yaml:"voice_style,omitempty" json:"voice_style,omitempty"`

	STTLanguage      string `yaml:"stt_language,omitempty" json:"stt_language,omitempty"`
	SilenceTimeoutMs int    `yaml:"silence_timeout_ms,omitempty" json:"silence_timeout_ms,omitempty"`
	VoicePacingMs    int    `yaml:"voice_pacing_ms,omitempty" json:"voice_pacing_ms,omitempty"`

	MaxDuration    int     `yaml:"max_duration,omitempty" json:"max_duration,omitempty"`
	IdleTimeout    float64 `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty"`
	ApologyMessage string  `yaml:"apology_message,omitempty" json:"apology_message,omitempty"`
}

// Agent is a stored agent definition: a base profile plus optional
// per-client-type overlays (keyed by "browser", "twilio" or "telnyx").
type Agent struct {
	ID       int                     `yaml:"id" json:"id"`
	Profile  AgentProfile            `yaml:"profile" json:"profile"`
	Overlays map[string]AgentProfile `yaml:"overlays,omitempty" json:"overlays,omitempty"`
}

// Validate checks the agent for values that can never produce a usable call.
// It returns a joined error describing every violation, or nil.
func (a Agent) Validate() error {
	var errs []error
	if a.ID <= 0 {
		errs = append(errs, fmt.Errorf("callconfig: agent id must be positive, got %d", a.ID))
	}
	check := func(scope string, p AgentProfile) {
		switch p.FirstMessageMode {
		case "", ModeSpeakFirst, ModeWaitForUser:
		default:
			errs = append(errs, fmt.Errorf("callconfig: agent %d %s: first_message_mode must be %q or %q, got %q",
				a.ID, scope, ModeSpeakFirst, ModeWaitForUser, p.FirstMessageMode))
		}
		if p.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("callconfig: agent %d %s: max_tokens must not be negative", a.ID, scope))
		}
	}
	check("profile", a.Profile)
	for ct, o := range a.Overlays {
		switch ct {
		case audio.ClientBrowser, audio.ClientTwilio, audio.ClientTelnyx:
		default:
			errs = append(errs, fmt.Errorf("callconfig: agent %d: unknown overlay client type %q", a.ID, ct))
		}
		check("overlay "+ct, o)
	}
	return errors.Join(errs...)
}

// Merge returns p with every non-zero field of o applied on top.
func (p AgentProfile) Merge(o AgentProfile) AgentProfile {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	flt := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	str(&p.LLMProvider, o.LLMProvider)
	str(&p.LLMModel, o.LLMModel)
	flt(&p.Temperature, o.Temperature)
	num(&p.MaxTokens, o.MaxTokens)
	str(&p.SystemPrompt, o.SystemPrompt)
	str(&p.FirstMessage, o.FirstMessage)
	str(&p.FirstMessageMode, o.FirstMessageMode)
	str(&p.VoiceName, o.VoiceName)
	str(&p.VoiceLanguage, o.VoiceLanguage)
	flt(&p.VoiceSpeed, o.VoiceSpeed)
	num(&p.VoicePitch, o.VoicePitch)
	num(&p.VoiceVolume, o.VoiceVolume)
	str(&p.VoiceStyle, o.VoiceStyle)
	str(&p.STTLanguage, o.STTLanguage)
	num(&p.SilenceTimeoutMs, o.SilenceTimeoutMs)
	num(&p.VoicePacingMs, o.VoicePacingMs)
	num(&p.MaxDuration, o.MaxDuration)
	flt(&p.IdleTimeout, o.IdleTimeout)
	str(&p.ApologyMessage, o.ApologyMessage)
	return p
}

// Resolve applies the overlay for clientType to the agent's base profile and
// maps the result to a [CallConfig], filling unset values with defaults. The
// sample rate is always derived from clientType.
func Resolve(a Agent, clientType string) CallConfig {
	p := a.Profile
	if o, ok := a.Overlays[clientType]; ok {
		p = p.Merge(o)
	}

	agentID := a.ID
	if agentID <= 0 {
		agentID = DefaultAgentID
	}

	return CallConfig{
		ClientType:       clientType,
		AgentID:          agentID,
		LLMProvider:      or(p.LLMProvider, DefaultLLMProvider),
		LLMModel:         or(p.LLMModel, DefaultLLMModel),
		Temperature:      or(p.Temperature, DefaultTemperature),
		MaxTokens:        or(p.MaxTokens, DefaultMaxTokens),
		SystemPrompt:     strings.TrimSpace(p.SystemPrompt),
		FirstMessage:     strings.TrimSpace(p.FirstMessage),
		FirstMessageMode: or(p.FirstMessageMode, ModeSpeakFirst),
		VoiceName:        or(p.VoiceName, DefaultVoiceName),
		VoiceLanguage:    or(p.VoiceLanguage, DefaultVoiceLanguage),
		VoiceSpeed:       or(p.VoiceSpeed, DefaultVoiceSpeed),
		VoicePitch:       p.VoicePitch,
		VoiceVolume:      or(p.VoiceVolume, DefaultVoiceVolume),
		VoiceStyle:       or(p.VoiceStyle, DefaultVoiceStyle),
		STTLanguage:      or(p.STTLanguage, DefaultSTTLanguage),
		SampleRate:       audio.SampleRateFor(clientType),
		SilenceTimeoutMs: or(p.SilenceTimeoutMs, DefaultSilenceTimeoutMs),
		VoicePacingMs:    p.VoicePacingMs,
		MaxDuration:      or(p.MaxDuration, DefaultMaxDuration),
		IdleTimeout:      or(p.IdleTimeout, DefaultIdleTimeout),
		ApologyMessage:   or(p.ApologyMessage, DefaultApologyMessage),
	}
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
