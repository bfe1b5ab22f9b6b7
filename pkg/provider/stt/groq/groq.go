// Package groq provides an STT provider that runs Whisper on Groq's hosted
// inference API.
//
// Groq exposes an OpenAI-compatible endpoint, so the provider drives it with
// the official openai-go SDK pointed at https://api.groq.com/openai/v1.
// Transcription is one-shot: each utterance is uploaded as a WAV file.
//
// Audio shorter than [stt.DefaultMinPCMBytes] or quieter than the silence
// threshold is not sent at all; Whisper rejects very short files and
// hallucinates text on silence.
package groq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the Whisper model used when none is configured.
	DefaultModel = "whisper-large-v3"

	defaultLanguage = "es"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using Groq Whisper.
type Provider struct {
	client oai.Client
	model  string
	gate   stt.SpeechGate
}

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	gate       stt.SpeechGate
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Groq API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the Whisper model. Defaults to [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithRMSThreshold overrides the normalised RMS below which audio counts as
// silence. Negative disables the silence check.
func WithRMSThreshold(v float64) Option {
	return func(c *config) { c.gate.RMSThreshold = v }
}

// WithMinPCMBytes overrides the minimum raw PCM length worth uploading.
// Negative disables the length check.
func WithMinPCMBytes(n int) Option {
	return func(c *config) { c.gate.MinPCMBytes = n }
}

// New constructs a Groq Whisper provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("groq: apiKey must not be empty")
	}
	cfg := &config{baseURL: DefaultBaseURL, model: DefaultModel, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		gate:   cfg.gate,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (string, error) {
	wav, ok := p.gate.PrepareWAV(audio, cfg)
	if !ok {
		return "", nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          oai.AudioModel(p.model),
		Language:       oai.String(cfg.BaseLanguage(defaultLanguage)),
		Temperature:    oai.Float(0),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("groq: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
