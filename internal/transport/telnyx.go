package transport

import (
	"context"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// Telnyx speaks the Telnyx media streaming protocol. Outbound audio is
// 8 kHz mu-law on the inbound track of the stream.
type Telnyx struct {
	*wsConn
}

var _ Transport = (*Telnyx)(nil)

// NewTelnyx returns a Telnyx transport over conn.
func NewTelnyx(conn *websocket.Conn) *Telnyx {
	return &Telnyx{wsConn: newWSConn(conn, audio.ClientTelnyx)}
}

type telnyxMedia struct {
	Event    string        `json:"event"`
	StreamID string        `json:"stream_id"`
	Media    telnyxPayload `json:"media"`
}

type telnyxPayload struct {
	Payload string `json:"payload"`
	Track   string `json:"track"`
}

// SendAudio implements [Transport]. Audio is dropped until a stream id is
// known.
func (t *Telnyx) SendAudio(ctx context.Context, data []byte, _ int) {
	sid := t.stream()
	if sid == "" || len(data) == 0 {
		return
	}
	t.writeJSON(ctx, telnyxMedia{
		Event:    "media",
		StreamID: sid,
		Media:    telnyxPayload{Payload: encode(data), Track: "inbound_track"},
	})
}

// SendJSON implements [Transport].
func (t *Telnyx) SendJSON(ctx context.Context, v any) {
	t.writeJSON(ctx, v)
}
