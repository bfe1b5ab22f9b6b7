// Package transport sends audio and control messages back to a connected
// caller over a WebSocket.
//
// Every client type has its own envelope: the browser simulator receives
// {"type":"audio"} messages, Twilio and Telnyx receive media events tagged
// with the stream identifier announced in their "start" event. All
// implementations share one connection core that serialises writes and
// turns the first write failure into a closed transport.
//
// Transport methods never return errors. Failures are logged and the
// transport reports itself disconnected; every method is safe to call after
// Close.
package transport

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxcall/pkg/audio"
)

// DefaultWriteTimeout bounds a single WebSocket write.
const DefaultWriteTimeout = 5 * time.Second

// Transport is the outbound half of a call connection.
type Transport interface {
	// SendAudio sends synthesized audio in the client's wire format.
	SendAudio(ctx context.Context, data []byte, sampleRate int)

	// SendJSON sends an arbitrary JSON control message.
	SendJSON(ctx context.Context, v any)

	// SetStreamID records the stream identifier that telephony envelopes
	// must carry. Browser transports ignore it.
	SetStreamID(id string)

	// Close closes the connection. Subsequent calls are no-ops.
	Close()

	// IsConnected reports whether the transport is still usable.
	IsConnected() bool
}

// New returns the transport for clientType over conn. Unknown client types
// get the browser envelope.
func New(clientType string, conn *websocket.Conn) Transport {
	switch strings.ToLower(clientType) {
	case audio.ClientTwilio:
		return NewTwilio(conn)
	case audio.ClientTelnyx:
		return NewTelnyx(conn)
	default:
		return NewBrowser(conn)
	}
}

// wsConn is the connection core shared by all transports.
type wsConn struct {
	conn   *websocket.Conn
	kind   string
	closed atomic.Bool

	writeMu   sync.Mutex
	closeOnce sync.Once

	streamMu sync.RWMutex
	streamID string
}

func newWSConn(conn *websocket.Conn, kind string) *wsConn {
	return &wsConn{conn: conn, kind: kind}
}

// writeJSON sends v. The first failure marks the transport closed.
func (c *wsConn) writeJSON(ctx context.Context, v any) {
	if c.conn == nil || c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, DefaultWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		slog.Warn("transport: write failed", "client_type", c.kind, "err", err)
		c.closed.Store(true)
	}
}

func (c *wsConn) SetStreamID(id string) {
	c.streamMu.Lock()
	c.streamID = id
	c.streamMu.Unlock()
}

func (c *wsConn) stream() string {
	c.streamMu.RLock()
	defer c.streamMu.RUnlock()
	return c.streamID
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			slog.Debug("transport: close", "client_type", c.kind, "err", err)
		}
	})
}

func (c *wsConn) IsConnected() bool {
	return c.conn != nil && !c.closed.Load()
}

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
