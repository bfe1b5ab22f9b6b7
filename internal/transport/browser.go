package transport

import (
	"context"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// Browser speaks to the web simulator. Audio is 16 kHz PCM wrapped as
// {"type":"audio","data":<base64>}.
type Browser struct {
	*wsConn
}

var _ Transport = (*Browser)(nil)

// NewBrowser returns a browser transport over conn.
func NewBrowser(conn *websocket.Conn) *Browser {
	return &Browser{wsConn: newWSConn(conn, audio.ClientBrowser)}
}

type browserAudio struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SendAudio implements [Transport].
func (b *Browser) SendAudio(ctx context.Context, data []byte, _ int) {
	if len(data) == 0 {
		return
	}
	b.writeJSON(ctx, browserAudio{Type: "audio", Data: encode(data)})
}

// SendJSON implements [Transport].
func (b *Browser) SendJSON(ctx context.Context, v any) {
	b.writeJSON(ctx, v)
}
