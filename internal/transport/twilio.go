package transport

import (
	"context"
	"maps"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// Twilio speaks the Twilio Media Streams protocol. Outbound audio is
// 8 kHz mu-law in a "media" event addressed by streamSid.
type Twilio struct {
	*wsConn
}

var _ Transport = (*Twilio)(nil)

// NewTwilio returns a Twilio transport over conn.
func NewTwilio(conn *websocket.Conn) *Twilio {
	return &Twilio{wsConn: newWSConn(conn, audio.ClientTwilio)}
}

type twilioMedia struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid"`
	Media     twilioPayload `json:"media"`
}

type twilioPayload struct {
	Payload string `json:"payload"`
}

// SendAudio implements [Transport]. Audio is dropped until a stream id is
// known.
func (t *Twilio) SendAudio(ctx context.Context, data []byte, _ int) {
	sid := t.stream()
	if sid == "" || len(data) == 0 {
		return
	}
	t.writeJSON(ctx, twilioMedia{Event: "media", StreamSID: sid, Media: twilioPayload{Payload: encode(data)}})
}

// SendJSON implements [Transport]. Map messages without a streamSid get the
// current stream id added.
func (t *Twilio) SendJSON(ctx context.Context, v any) {
	if m, ok := v.(map[string]any); ok {
		if _, has := m["streamSid"]; !has {
			if sid := t.stream(); sid != "" {
				m = maps.Clone(m)
				m["streamSid"] = sid
				v = m
			}
		}
	}
	t.writeJSON(ctx, v)
}
