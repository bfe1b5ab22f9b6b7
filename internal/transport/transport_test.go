package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// pair starts a websocket server that forwards every received JSON message
// to the returned channel and returns the client side of the connection.
func pair(t *testing.T) (*websocket.Conn, <-chan map[string]any) {
	t.Helper()
	msgs := make(chan map[string]any, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			var m map[string]any
			if err := wsjson.Read(r.Context(), c, &m); err != nil {
				close(msgs)
				return
			}
			msgs <- m
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, msgs
}

func recv(t *testing.T, ch <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("connection closed before message")
		}
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestNew_SelectsImplementation(t *testing.T) {
	tests := []struct {
		clientType string
		want       string
	}{
		{"browser", "*transport.Browser"},
		{"twilio", "*transport.Twilio"},
		{"Telnyx", "*transport.Telnyx"},
		{"unknown", "*transport.Browser"},
	}
	for _, tc := range tests {
		t.Run(tc.clientType, func(t *testing.T) {
			got := typeName(New(tc.clientType, nil))
			if got != tc.want {
				t.Errorf("New(%q) = %s, want %s", tc.clientType, got, tc.want)
			}
		})
	}
}

func typeName(tr Transport) string {
	switch tr.(type) {
	case *Browser:
		return "*transport.Browser"
	case *Twilio:
		return "*transport.Twilio"
	case *Telnyx:
		return "*transport.Telnyx"
	}
	return "?"
}

func TestBrowser_SendAudio(t *testing.T) {
	conn, msgs := pair(t)
	b := NewBrowser(conn)
	b.SetStreamID("ignored")

	b.SendAudio(context.Background(), []byte{1, 2, 3}, 16000)
	m := recv(t, msgs)
	if m["type"] != "audio" {
		t.Errorf("type = %v, want audio", m["type"])
	}
	if m["data"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("data = %v", m["data"])
	}

	b.SendJSON(context.Background(), map[string]any{"type": "transcript", "role": "user", "text": "hola"})
	m = recv(t, msgs)
	if m["text"] != "hola" {
		t.Errorf("text = %v, want hola", m["text"])
	}
}

func TestTwilio_Envelope(t *testing.T) {
	conn, msgs := pair(t)
	tw := NewTwilio(conn)

	// No stream id yet: nothing is sent.
	tw.SendAudio(context.Background(), []byte{9}, 8000)

	tw.SetStreamID("MZ123")
	tw.SendAudio(context.Background(), []byte{9}, 8000)
	m := recv(t, msgs)
	if m["event"] != "media" || m["streamSid"] != "MZ123" {
		t.Errorf("envelope = %v", m)
	}
	media, _ := m["media"].(map[string]any)
	if media["payload"] != base64.StdEncoding.EncodeToString([]byte{9}) {
		t.Errorf("payload = %v", media["payload"])
	}

	orig := map[string]any{"event": "clear"}
	tw.SendJSON(context.Background(), orig)
	m = recv(t, msgs)
	if m["streamSid"] != "MZ123" {
		t.Errorf("SendJSON streamSid = %v, want MZ123", m["streamSid"])
	}
	if _, mutated := orig["streamSid"]; mutated {
		t.Error("SendJSON must not mutate the caller's map")
	}
}

func TestTelnyx_Envelope(t *testing.T) {
	conn, msgs := pair(t)
	tx := NewTelnyx(conn)
	tx.SetStreamID("st-1")
	tx.SendAudio(context.Background(), []byte{4, 5}, 8000)

	raw, _ := json.Marshal(recv(t, msgs))
	var m telnyxMedia
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Event != "media" || m.StreamID != "st-1" || m.Media.Track != "inbound_track" {
		t.Errorf("envelope = %+v", m)
	}
}

func TestClose_Idempotent(t *testing.T) {
	conn, _ := pair(t)
	b := NewBrowser(conn)
	if !b.IsConnected() {
		t.Fatal("new transport should be connected")
	}
	b.Close()
	b.Close()
	if b.IsConnected() {
		t.Error("IsConnected after Close = true")
	}
	// Sending after close is a silent no-op.
	b.SendAudio(context.Background(), []byte{1}, 16000)
	b.SendJSON(context.Background(), map[string]any{"x": 1})
}

func TestWriteFailureMarksClosed(t *testing.T) {
	conn, _ := pair(t)
	b := NewBrowser(conn)
	conn.CloseNow()

	b.SendAudio(context.Background(), []byte{1}, 16000)
	if b.IsConnected() {
		t.Error("transport should be disconnected after a failed write")
	}
}

func TestNilConn(t *testing.T) {
	tr := New("twilio", nil)
	tr.SetStreamID("x")
	tr.SendAudio(context.Background(), []byte{1}, 8000)
	tr.Close()
	if tr.IsConnected() {
		t.Error("nil connection should never report connected")
	}
}
