// Package whisper transcribes utterances with a self-hosted whisper.cpp
// server (the whisper-server binary and its POST /inference endpoint).
//
// whisper.cpp only accepts 16 kHz mono, so telephony and browser audio is
// converted before upload:
//
//	p, _ := whisper.New("http://localhost:8081", whisper.WithModel("small"))
//	text, err := p.Transcribe(ctx, pcm, stt.StreamConfig{Language: "es-MX", SampleRate: 8000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

// inputFormat is what whisper.cpp decodes.
var inputFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Provider implements [stt.Provider].
type Provider struct {
	endpoint string
	model    string
	language string
	gate     stt.SpeechGate
	client   *http.Client
}

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the one the
// server was started with.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used for requests that carry none. The
// default is "es".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

func WithGate(g stt.SpeechGate) Option { return func(p *Provider) { p.gate = g } }

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// New returns a provider for the server at serverURL, e.g.
// "http://localhost:8081".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		language: "es",
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider]. Audio the gate rejects is not sent
// and yields "".
func (p *Provider) Transcribe(ctx context.Context, in []byte, cfg stt.StreamConfig) (string, error) {
	if _, speech := p.gate.PrepareWAV(in, cfg); !speech {
		return "", nil
	}
	wav, err := normalize(in, cfg)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	text, err := p.post(ctx, wav, cfg.BaseLanguage(p.language))
	return strings.TrimSpace(text), err
}

// normalize converts raw PCM described by cfg, or a WAV file, into a WAV
// file in inputFormat.
func normalize(in []byte, cfg stt.StreamConfig) ([]byte, error) {
	pcm, from := in, audio.Format{SampleRate: cfg.SampleRate, Channels: max(cfg.Channels, 1)}
	if audio.IsWAV(in) {
		info, err := audio.ParseWAV(in)
		if err != nil {
			return nil, err
		}
		pcm, from = in[info.DataOffset:], audio.Format{SampleRate: info.SampleRate, Channels: info.Channels}
	}
	mono, err := audio.ConvertPCM16(pcm[:len(pcm)&^1], from, inputFormat)
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(mono, inputFormat.SampleRate, inputFormat.Channels), nil
}

func (p *Provider) post(ctx context.Context, wav []byte, language string) (string, error) {
	body, contentType, err := inferenceForm(wav, map[string]string{
		"language":        language,
		"model":           p.model,
		"response_format": "json",
		"temperature":     "0.0",
	})
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return out.Text, nil
}

// inferenceForm encodes wav as the "file" part followed by the non-empty
// fields.
func inferenceForm(wav []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if v != "" {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
