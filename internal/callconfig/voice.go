package callconfig

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// ErrInvalidVoiceConfig is wrapped by every [NewVoiceConfig] validation error.
var ErrInvalidVoiceConfig = errors.New("callconfig: invalid voice config")

// Voice parameter bounds (inclusive).
const (
	MinSpeed       = 0.5
	MaxSpeed       = 2.0
	MinPitch       = -100
	MaxPitch       = 100
	MinVolume      = 0
	MaxVolume      = 100
	MinStyleDegree = 0.01
	MaxStyleDegree = 2.0
)

// ValidStyles lists the accepted speaking styles.
var ValidStyles = []string{"default", "cheerful", "sad", "angry", "friendly", "terrified", "excited", "hopeful"}

// VoiceConfig is an immutable, validated set of TTS voice parameters.
type VoiceConfig struct {
	name        string
	language    string
	speed       float64
	pitch       int
	volume      int
	style       string
	styleDegree float64
}

// VoiceOption customises a [VoiceConfig] under construction.
type VoiceOption func(*VoiceConfig)

// WithLanguage sets the BCP-47 language of the spoken text.
func WithLanguage(lang string) VoiceOption { return func(v *VoiceConfig) { v.language = lang } }

// WithSpeed sets the speaking-rate multiplier.
func WithSpeed(s float64) VoiceOption { return func(v *VoiceConfig) { v.speed = s } }

// WithPitch sets the pitch shift in Hz.
func WithPitch(p int) VoiceOption { return func(v *VoiceConfig) { v.pitch = p } }

// WithVolume sets the volume in percent.
func WithVolume(vol int) VoiceOption { return func(v *VoiceConfig) { v.volume = vol } }

// WithStyle sets the speaking style. An empty style means "default".
func WithStyle(s string) VoiceOption { return func(v *VoiceConfig) { v.style = s } }

// WithStyleDegree sets the style intensity.
func WithStyleDegree(d float64) VoiceOption { return func(v *VoiceConfig) { v.styleDegree = d } }

// NewVoiceConfig validates and returns a voice configuration for name.
// Unset parameters default to speed 1.0, pitch 0, volume 100, style
// "default", style degree 1.0 and language es-MX.
func NewVoiceConfig(name string, opts ...VoiceOption) (VoiceConfig, error) {
	v := VoiceConfig{
		name:        name,
		language:    defaultLanguage,
		speed:       1.0,
		volume:      100,
		style:       DefaultVoiceStyle,
		styleDegree: 1.0,
	}
	for _, o := range opts {
		o(&v)
	}
	if v.style == "" {
		v.style = DefaultVoiceStyle
	}
	if v.language == "" {
		v.language = defaultLanguage
	}
	if err := v.validate(); err != nil {
		return VoiceConfig{}, err
	}
	return v, nil
}

// FromCallConfig builds the voice configuration of a call. The style degree
// is always 1.0.
func FromCallConfig(c CallConfig) (VoiceConfig, error) {
	return NewVoiceConfig(c.VoiceName,
		WithLanguage(c.VoiceLanguage),
		WithSpeed(c.VoiceSpeed),
		WithPitch(c.VoicePitch),
		WithVolume(c.VoiceVolume),
		WithStyle(c.VoiceStyle),
		WithStyleDegree(1.0),
	)
}

func (v VoiceConfig) validate() error {
	switch {
	case v.name == "":
		return fmt.Errorf("%w: voice name must not be empty", ErrInvalidVoiceConfig)
	case v.speed < MinSpeed || v.speed > MaxSpeed:
		return fmt.Errorf("%w: speed must be in [%g, %g], got %g", ErrInvalidVoiceConfig, MinSpeed, MaxSpeed, v.speed)
	case v.pitch < MinPitch || v.pitch > MaxPitch:
		return fmt.Errorf("%w: pitch must be in [%d, %d], got %d", ErrInvalidVoiceConfig, MinPitch, MaxPitch, v.pitch)
	case v.volume < MinVolume || v.volume > MaxVolume:
		return fmt.Errorf("%w: volume must be in [%d, %d], got %d", ErrInvalidVoiceConfig, MinVolume, MaxVolume, v.volume)
	case v.styleDegree < MinStyleDegree || v.styleDegree > MaxStyleDegree:
		return fmt.Errorf("%w: style_degree must be in [%g, %g], got %g", ErrInvalidVoiceConfig, MinStyleDegree, MaxStyleDegree, v.styleDegree)
	case !slices.Contains(ValidStyles, v.style):
		return fmt.Errorf("%w: unknown style %q", ErrInvalidVoiceConfig, v.style)
	}
	return nil
}

func (v VoiceConfig) Name() string         { return v.name }
func (v VoiceConfig) Language() string     { return v.language }
func (v VoiceConfig) Speed() float64       { return v.speed }
func (v VoiceConfig) Pitch() int           { return v.pitch }
func (v VoiceConfig) Volume() int          { return v.volume }
func (v VoiceConfig) Style() string        { return v.style }
func (v VoiceConfig) StyleDegree() float64 { return v.styleDegree }

// TTSParams returns the provider-facing synthesis request for text in format.
func (v VoiceConfig) TTSParams(text string, format audio.Config) tts.Request {
	return tts.Request{
		Text:        text,
		VoiceID:     v.name,
		Language:    v.language,
		Speed:       v.speed,
		Pitch:       v.pitch,
		Volume:      v.volume,
		Style:       v.style,
		StyleDegree: v.styleDegree,
		Format:      format,
	}
}
