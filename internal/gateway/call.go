package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/voxcall/internal/orchestrator"
	"github.com/MrWong99/voxcall/internal/transport"
	"github.com/MrWong99/voxcall/pkg/audio"
)

// envelope is the union of the inbound message shapes. Telephony carriers
// send {"event": ...}; the browser simulator sends {"type": "audio"}.
type envelope struct {
	Event     string        `json:"event"`
	Type      string        `json:"type"`
	Data      string        `json:"data"`
	StreamSid string        `json:"streamSid"`
	StreamID  string        `json:"stream_id"`
	Start     *startPayload `json:"start"`
	Media     *mediaPayload `json:"media"`
}

type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	StreamID         string            `json:"stream_id"`
	CallControlID    string            `json:"call_control_id"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// inbound is one message read off the socket.
type inbound struct {
	typ  websocket.MessageType
	data []byte
}

// call is the state of one connection.
type call struct {
	h          *Handler
	conn       *websocket.Conn
	clientType string
	agentID    int
	streamID   string
	transport  transport.Transport
	orch       *orchestrator.Orchestrator

	// queryStreamID is the telephony stream id from the upgrade URL, used
	// when the start event carries none.
	queryStreamID string
}

// run reads messages until the call ends, then stops the orchestrator.
// Reads happen on their own goroutine so that a hang-up cancels the
// in-flight turn.
func (c *call) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	msgs := make(chan inbound)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.readLoop(ctx, cancel, msgs)
	}()

	c.loop(ctx, msgs)
	c.finish(ctx)
	cancel()
	<-readerDone
}

func (c *call) readLoop(ctx context.Context, cancel context.CancelFunc, msgs chan<- inbound) {
	defer close(msgs)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logReadEnd(c, err)
			}
			cancel()
			return
		}
		select {
		case msgs <- inbound{typ: typ, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func logReadEnd(c *call, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		slog.Info("gateway: client disconnected", "client_type", c.clientType, "stream_id", c.streamID)
	default:
		slog.Info("gateway: read ended", "client_type", c.clientType, "stream_id", c.streamID, "err", err)
	}
}

func (c *call) loop(ctx context.Context, msgs <-chan inbound) {
	if c.clientType == audio.ClientBrowser {
		if !c.start(ctx) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if done := c.handle(ctx, m); done {
				return
			}
		}
	}
}

// handle processes one message and reports whether the call is over.
func (c *call) handle(ctx context.Context, m inbound) bool {
	if m.typ == websocket.MessageBinary {
		if c.clientType != audio.ClientBrowser {
			slog.Debug("gateway: ignoring binary frame", "client_type", c.clientType)
			return false
		}
		return c.processAudio(ctx, m.data)
	}

	var env envelope
	if err := json.Unmarshal(m.data, &env); err != nil {
		slog.Warn("gateway: invalid message", "client_type", c.clientType, "err", err)
		return false
	}

	switch {
	case env.Type == "audio":
		return c.processEncoded(ctx, env.Data)
	case env.Event == "start":
		if c.orch != nil {
			slog.Debug("gateway: duplicate start event", "stream_id", c.streamID)
			return false
		}
		c.applyStart(env)
		return !c.start(ctx)
	case env.Event == "media":
		if env.Media == nil {
			return false
		}
		return c.processEncoded(ctx, env.Media.Payload)
	case env.Event == "stop":
		slog.Info("gateway: stop event received", "client_type", c.clientType, "stream_id", c.streamID)
		return true
	case env.Event == "connected", env.Event == "client_interruption":
		return false
	default:
		slog.Debug("gateway: unhandled message", "client_type", c.clientType, "event", env.Event, "type", env.Type)
		return false
	}
}

// applyStart takes the stream id and optional agent override from a
// telephony start event.
func (c *call) applyStart(env envelope) {
	var fromStart, fromStartID, callControl string
	if env.Start != nil {
		fromStart = env.Start.StreamSid
		fromStartID = env.Start.StreamID
		callControl = env.Start.CallControlID
		if v, ok := env.Start.CustomParameters["agent_id"]; ok {
			c.agentID = parseAgentID(v)
		}
	}
	c.streamID = firstNonEmpty(fromStart, env.StreamSid, env.StreamID, fromStartID, callControl, c.queryStreamID, uuid.NewString())
	c.transport.SetStreamID(c.streamID)
}

// start creates and starts the orchestrator. It reports whether the call
// can continue.
func (c *call) start(ctx context.Context) bool {
	orch, err := c.h.newOrchestrator(c)
	if err != nil {
		slog.Error("gateway: create orchestrator failed", "client_type", c.clientType, "err", err)
		return false
	}
	c.orch = orch
	slog.Info("gateway: call connected", "client_type", c.clientType, "stream_id", c.streamID, "agent_id", c.agentID)
	if err := orch.Start(ctx); err != nil {
		c.h.reportCritical(ctx, c, err)
		return false
	}
	return true
}

func (c *call) processEncoded(ctx context.Context, payload string) bool {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		slog.Warn("gateway: invalid audio payload", "client_type", c.clientType, "stream_id", c.streamID, "err", err)
		return false
	}
	return c.processAudio(ctx, data)
}

func (c *call) processAudio(ctx context.Context, data []byte) bool {
	if c.orch == nil || len(data) == 0 {
		return false
	}
	err := c.orch.ProcessAudio(ctx, data)
	if err == nil {
		return false
	}
	var cce *orchestrator.CriticalCallError
	if errors.As(err, &cce) {
		c.h.reportCritical(ctx, c, err)
		return true
	}
	slog.Error("gateway: process audio failed", "stream_id", c.streamID, "err", err)
	return true
}

// finish stops the orchestrator on a bounded context that outlives the
// connection, then closes the socket.
func (c *call) finish(ctx context.Context) {
	if c.orch != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.h.deps.StopTimeout)
		c.orch.Stop(stopCtx)
		cancel()
	}
	c.transport.Close()
}
