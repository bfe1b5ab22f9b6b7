// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text. Each utterance is sent as one synchronous Recognize call.
//
// Browser audio (16-bit PCM) is sent as LINEAR16; 8 kHz telephony audio is
// sent as MULAW without transcoding.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

const defaultLanguage = "es-MX"

// recognizeFunc is the subset of the Speech client the provider uses.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Provider implements stt.Provider using Google Cloud Speech.
type Provider struct {
	recognize recognizeFunc
	closer    func() error
	model     string
	gate      stt.SpeechGate
}

type config struct {
	apiKey          string
	credentialsFile string
	endpoint        string
	model           string
	gate            stt.SpeechGate
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey authenticates with an API key.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithCredentialsFile authenticates with a service-account JSON file.
func WithCredentialsFile(path string) Option {
	return func(c *config) { c.credentialsFile = path }
}

// WithEndpoint overrides the Speech API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *config) { c.endpoint = endpoint }
}

// WithModel selects a recognition model (e.g., "phone_call", "latest_short").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithRMSThreshold sets the silence threshold applied to PCM input.
func WithRMSThreshold(v float64) Option {
	return func(c *config) { c.gate.RMSThreshold = v }
}

// New creates a Provider and dials the Speech API. Either an API key or a
// credentials file must be configured; without both, application default
// credentials are used.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.apiKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	case cfg.credentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}

	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	return &Provider{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		closer: client.Close,
		model:  cfg.model,
		gate:   cfg.gate,
	}, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, in []byte, cfg stt.StreamConfig) (string, error) {
	if p.recognize == nil {
		return "", errors.New("google: provider not initialised")
	}
	req, ok := p.buildRequest(in, cfg)
	if !ok {
		return "", nil
	}

	resp, err := p.recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("google: recognize: %w", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// buildRequest maps the audio chunk onto a RecognizeRequest. It returns false
// when the chunk should not be sent.
func (p *Provider) buildRequest(in []byte, cfg stt.StreamConfig) (*speechpb.RecognizeRequest, bool) {
	if len(in) == 0 {
		return nil, false
	}
	lang := cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.SampleRateFor(audio.ClientBrowser)
	}

	rc := &speechpb.RecognitionConfig{
		SampleRateHertz:            int32(rate),
		LanguageCode:               lang,
		EnableAutomaticPunctuation: true,
		Model:                      p.model,
	}

	var payload []byte
	if !audio.IsWAV(in) && rate == audio.SampleRateFor(audio.ClientTwilio) {
		rc.Encoding = speechpb.RecognitionConfig_MULAW
		payload = in
	} else {
		if _, ok := p.gate.PrepareWAV(in, cfg); !ok {
			return nil, false
		}
		rc.Encoding = speechpb.RecognitionConfig_LINEAR16
		payload = audio.PCMPayload(in)
	}

	return &speechpb.RecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: payload},
		},
	}, true
}

var _ stt.Provider = (*Provider)(nil)
