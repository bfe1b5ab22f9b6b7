// Package deepgram transcribes utterances over Deepgram's live listen
// WebSocket. Every Transcribe call is one short stream: the utterance goes
// up as a single WAV message, CloseStream flushes it, and the final results
// are joined until Deepgram hangs up.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

// Defaults used by [New].
const (
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-3"
	DefaultLanguage = "es"
)

var closeStream = []byte(`{"type":"CloseStream"}`)

// Provider implements [stt.Provider].
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	gate     stt.SpeechGate
}

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel selects the Deepgram model, e.g. "nova-3" or "base".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used for requests that carry none.
func WithLanguage(language string) Option { return func(p *Provider) { p.language = language } }

// WithEndpoint points the provider at another listen URL, such as a
// self-hosted Deepgram.
func WithEndpoint(u string) Option { return func(p *Provider) { p.endpoint = u } }

func WithGate(g stt.SpeechGate) Option { return func(p *Provider) { p.gate = g } }

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{apiKey: apiKey, model: DefaultModel, language: DefaultLanguage, endpoint: DefaultEndpoint}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, in []byte, cfg stt.StreamConfig) (string, error) {
	wav, speech := p.gate.PrepareWAV(in, cfg)
	if !speech {
		return "", nil
	}
	target, err := p.streamURL(cfg)
	if err != nil {
		return "", fmt.Errorf("deepgram: endpoint: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageBinary, wav); err != nil {
		return "", fmt.Errorf("deepgram: send audio: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		return "", fmt.Errorf("deepgram: flush: %w", err)
	}
	return collectFinals(ctx, conn)
}

// collectFinals reads results until the server closes the stream. A socket
// that drops after at least one final result counts as a normal end.
func collectFinals(ctx context.Context, conn *websocket.Conn) (string, error) {
	var finals []string
	for {
		_, msg, err := conn.Read(ctx)
		switch {
		case err == nil:
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
			return strings.Join(finals, " "), nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case len(finals) > 0:
			return strings.Join(finals, " "), nil
		default:
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		if text, final, ok := decodeResult(msg); ok && final && text != "" {
			finals = append(finals, text)
		}
	}
}

// streamURL adds the query parameters for cfg. Encoding and sample rate are
// left out; Deepgram reads them from the WAV header.
func (p *Provider) streamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range map[string]string{
		"model":        p.model,
		"language":     cfg.BaseLanguage(p.language),
		"punctuate":    "true",
		"smart_format": "true",
	} {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resultsMessage is the subset of a "Results" event that is read.
type resultsMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult extracts the top transcript of a Results event. ok is false
// for other events and malformed messages.
func decodeResult(msg []byte) (text string, final, ok bool) {
	var m resultsMessage
	if json.Unmarshal(msg, &m) != nil || m.Type != "Results" || len(m.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript), m.IsFinal, true
}
