package deepgram

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// fakeDeepgram accepts one stream, records the request and replies with
// the given messages once CloseStream arrives.
type fakeDeepgram struct {
	replies  []string
	closeErr bool

	mu    sync.Mutex
	auth  string
	query url.Values
	audio []byte
}

func (f *fakeDeepgram) seen() (auth string, query url.Values, audio []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth, f.query, f.audio
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = r.URL.Query()
	f.mu.Unlock()
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.mu.Lock()
			f.audio = append(f.audio, data...)
			f.mu.Unlock()
			continue
		}
		if string(data) == string(closeStream) {
			break
		}
	}
	for _, m := range f.replies {
		if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
			return
		}
	}
	if f.closeErr {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func newTestProvider(t *testing.T, f *fakeDeepgram) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribe(t *testing.T) {
	f := &fakeDeepgram{replies: []string{
		`{"type":"Metadata","request_id":"abc"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hola"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hola buenos días"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"quiero una cita"}]}}`,
	}}
	p := newTestProvider(t, f)

	got, err := p.Transcribe(context.Background(), speechPCM(8000), stt.StreamConfig{Language: "es-MX", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "hola buenos días quiero una cita", got)
	auth, query, uploaded := f.seen()
	assertEqual(t, "auth", "Token test-key", auth)
	assertEqual(t, "language", "es", query.Get("language"))
	if !audio.IsWAV(uploaded) {
		t.Error("uploaded audio is not a WAV container")
	}
}

func TestTranscribe_DroppedAfterResults(t *testing.T) {
	f := &fakeDeepgram{
		replies:  []string{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"sí"}]}}`},
		closeErr: true,
	}
	p := newTestProvider(t, f)

	got, err := p.Transcribe(context.Background(), speechPCM(8000), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "sí", got)
}

func TestTranscribe_SilenceSkipsUpload(t *testing.T) {
	f := &fakeDeepgram{}
	p := newTestProvider(t, f)

	got, err := p.Transcribe(context.Background(), make([]byte, 16000), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "", got)
	if auth, _, _ := f.seen(); auth != "" {
		t.Error("silent audio should not open a stream")
	}
}

func TestTranscribe_DialError(t *testing.T) {
	p, err := New("key", WithEndpoint("ws://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), speechPCM(8000), stt.StreamConfig{SampleRate: 16000}); err == nil {
		t.Error("expected dial error")
	}
}

func TestStreamURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.streamURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "es", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
}

func TestStreamURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.streamURL(stt.StreamConfig{Language: "fr-FR"})
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "model", "base", u.Query().Get("model"))
	assertEqual(t, "language", "fr", u.Query().Get("language"))
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
	}{
		{
			name:      "final",
			raw:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" Hola mundo ","confidence":0.95}]}}`,
			wantOK:    true,
			wantText:  "Hola mundo",
			wantFinal: true,
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hola"}]}}`,
			wantOK:   true,
			wantText: "Hola",
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, final, ok := decodeResult([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			assertEqual(t, "text", tt.wantText, text)
			if final != tt.wantFinal {
				t.Errorf("final = %v, want %v", final, tt.wantFinal)
			}
		})
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", DefaultModel, p.model)
	assertEqual(t, "language", DefaultLanguage, p.language)
	assertEqual(t, "endpoint", DefaultEndpoint, p.endpoint)
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
