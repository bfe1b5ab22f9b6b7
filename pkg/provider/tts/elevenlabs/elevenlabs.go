// Package elevenlabs synthesizes agent replies over the ElevenLabs
// stream-input WebSocket. A Synthesize call is one socket: settings and the
// whole reply go up, an empty text flushes, and audio is gathered until the
// final message.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

const (
	defaultBaseURL = "wss://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"

	outputPCM16k  = "pcm_16000"
	outputMulaw8k = "ulaw_8000"
)

// Provider implements [tts.Provider].
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	stability  float64
	similarity float64
}

var _ tts.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithBaseURL replaces the scheme and host, e.g. for a local fake.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithVoiceSettings sets stability and similarity boost. The defaults are
// 0.5 and 0.75.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) { p.stability, p.similarity = stability, similarity }
}

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL, stability: 0.5, similarity: 0.75}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// textMessage is every client message. Only the first one of a stream
// carries settings, key and format; {"text":""} flushes.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"` // base64
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements [tts.Provider]. Blank text yields no audio and no
// request.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice id must not be empty")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}

	format := outputFormat(req.OutputFormat())
	conn, _, err := websocket.Dial(ctx, p.buildURL(req.VoiceID, format), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(-1)

	msgs := []textMessage{
		{
			// The opening text must not be empty.
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: p.stability, SimilarityBoost: p.similarity, Speed: req.Speed},
			XiAPIKey:      p.apiKey,
			OutputFormat:  format,
		},
		{Text: req.Text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		if err := wsjson.Write(ctx, conn, m); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}
	return readAudio(ctx, conn)
}

func readAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var out []byte
	for {
		var resp audioResponse
		err := wsjson.Read(ctx, conn, &resp)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			out = append(out, pcm...)
		}
		if resp.IsFinal {
			return out, nil
		}
	}
}

func (p *Provider) buildURL(voiceID, format string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {format}}
	return p.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// outputFormat picks mu-law for telephony and 16 kHz PCM otherwise.
func outputFormat(c audio.Config) string {
	if c.IsTelephony() {
		return outputMulaw8k
	}
	return outputPCM16k
}
