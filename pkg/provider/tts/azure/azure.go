// Package azure provides a TTS provider backed by the Azure Speech REST API.
//
// Each request is rendered to SSML with a <prosody> element carrying rate,
// pitch and volume. When the selected voice supports the requested style an
// <mstts:express-as> element wraps the prosody.
package azure

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

const (
	endpointFmt = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"

	formatPCM16k  = "raw-16khz-16bit-mono-pcm"
	formatMulaw8k = "raw-8khz-8bit-mono-mulaw"

	defaultTimeout = 15 * time.Second
	userAgent      = "voxcall"
)

// voiceStyles lists the expressive styles each voice supports. Voices not in
// the table are rendered without express-as.
var voiceStyles = map[string][]string{
	"es-MX-DaliaNeural":  {"cheerful", "sad", "whispering"},
	"es-MX-JorgeNeural":  {"chat", "cheerful", "excited", "sad", "whispering"},
	"es-ES-AlvaroNeural": {"cheerful", "sad"},
}

// SupportsStyle reports whether voice can render style via express-as.
func SupportsStyle(voice, style string) bool {
	if style == "" || style == "default" {
		return false
	}
	for _, s := range voiceStyles[voice] {
		if s == style {
			return true
		}
	}
	return false
}

// Option is a functional option for configuring the Azure Provider.
type Option func(*Provider)

// WithEndpoint overrides the synthesis endpoint URL. Used for sovereign
// clouds and tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// WithHTTPClient sets the HTTP client used for synthesis requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against Azure Speech.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Azure Provider. apiKey and region must be non-empty.
func New(apiKey, region string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("azure: apiKey must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   fmt.Sprintf(endpointFmt, region),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if req.VoiceID == "" {
		return nil, errors.New("azure: voice id must not be empty")
	}
	ssml, err := BuildSSML(req)
	if err != nil {
		return nil, fmt.Errorf("azure: build ssml: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("azure: build request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", outputFormat(req.OutputFormat()))
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azure: synthesize: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure: read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure: synthesize: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// BuildSSML renders req into the SSML document sent to Azure.
func BuildSSML(req tts.Request) (string, error) {
	var text bytes.Buffer
	if err := xml.EscapeText(&text, []byte(req.Text)); err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = "es-MX"
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}

	var sb strings.Builder
	sb.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="`)
	sb.WriteString(attr(lang))
	sb.WriteString(`"><voice name="`)
	sb.WriteString(attr(req.VoiceID))
	sb.WriteString(`">`)

	styled := SupportsStyle(req.VoiceID, req.Style)
	if styled {
		sb.WriteString(`<mstts:express-as style="`)
		sb.WriteString(attr(req.Style))
		sb.WriteString(`" styledegree="`)
		sb.WriteString(strconv.FormatFloat(req.StyleDegree, 'f', -1, 64))
		sb.WriteString(`">`)
	}

	sb.WriteString(`<prosody rate="`)
	sb.WriteString(strconv.FormatFloat(speed, 'f', -1, 64))
	sb.WriteString(`" pitch="`)
	sb.WriteString(pitchAttr(req.Pitch))
	sb.WriteString(`" volume="`)
	sb.WriteString(strconv.Itoa(req.Volume))
	sb.WriteString(`">`)
	sb.Write(text.Bytes())
	sb.WriteString(`</prosody>`)

	if styled {
		sb.WriteString(`</mstts:express-as>`)
	}
	sb.WriteString(`</voice></speak>`)
	return sb.String(), nil
}

func pitchAttr(hz int) string {
	if hz == 0 {
		return "0Hz"
	}
	return fmt.Sprintf("%+dHz", hz)
}

func outputFormat(c audio.Config) string {
	if c.IsTelephony() {
		return formatMulaw8k
	}
	return formatPCM16k
}

func attr(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

var _ tts.Provider = (*Provider)(nil)
