// Package gateway serves the call WebSocket endpoints and the admin API.
//
// Each accepted WebSocket is one call. The handler builds the
// client-specific [transport.Transport], creates an
// [orchestrator.Orchestrator] and feeds it the inbound audio until the
// caller hangs up, the carrier sends "stop" or the orchestrator reports a
// critical error. Critical errors are counted by the shared
// [callpolicy.Policy]; while its stop is active new connections are
// refused with close code 1011.
//
// Routes:
//
//	GET  /ws/simulator                browser simulator
//	GET  /ws/twilio                   Twilio media stream
//	GET  /ws/telnyx                   Telnyx media stream
//	GET  /ws/media-stream             ?client_type=twilio|telnyx
//	POST /admin/reset-global-stop     clear the global call stop
//	GET  /admin/global-stop           policy snapshot
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/callpolicy"
	"github.com/MrWong99/voxcall/internal/events"
	"github.com/MrWong99/voxcall/internal/extraction"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/internal/orchestrator"
	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/internal/transport"
	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// Route paths served by [Handler].
const (
	RouteSimulator       = "/ws/simulator"
	RouteTwilio          = "/ws/twilio"
	RouteTelnyx          = "/ws/telnyx"
	RouteMediaStream     = "/ws/media-stream"
	RouteResetGlobalStop = "/admin/reset-global-stop"
	RouteGlobalStop      = "/admin/global-stop"
)

// Routes lists every path served by [Handler].
var Routes = []string{
	RouteSimulator, RouteTwilio, RouteTelnyx, RouteMediaStream,
	RouteResetGlobalStop, RouteGlobalStop,
}

// Defaults for [Deps].
const (
	DefaultStopTimeout = 10 * time.Second
	DefaultReadLimit   = 4 << 20
)

// StopReason is the close reason sent while the global call stop is active.
const StopReason = "Global call stop active"

// Deps are the collaborators shared by every call. STT, LLM, TTS, Config
// and Policy are required.
type Deps struct {
	STT    stt.Provider
	LLM    llm.Provider
	TTS    tts.Provider
	Config callconfig.ConfigPort
	Policy *callpolicy.Policy

	// LLMs are the configured LLM providers by name. An agent whose
	// llm_provider names one of them uses it instead of LLM.
	LLMs map[string]llm.Provider

	// Store persists call records and transcripts. Nil disables persistence.
	Store persistence.CallStore

	// Extractor runs post-call extraction. Nil disables it.
	Extractor extraction.Extractor

	// Events receives call-ended events. Nil publishes nothing.
	Events events.Publisher

	// Metrics records call metrics. Nil disables them.
	Metrics *observe.Metrics

	// EchoWindow is passed to every orchestrator. Zero disables the guard.
	EchoWindow time.Duration

	// StopTimeout bounds the end-of-call work. Default: [DefaultStopTimeout].
	StopTimeout time.Duration

	// AllowedOrigins are extra origin host patterns accepted for browser
	// upgrades.
	AllowedOrigins []string

	// ReadLimit caps a single inbound message. Default: [DefaultReadLimit].
	ReadLimit int64
}

// Handler routes the call and admin endpoints.
type Handler struct {
	deps  Deps
	mux   *http.ServeMux
	calls sync.WaitGroup
}

var _ http.Handler = (*Handler)(nil)

// New validates deps and builds the router.
func New(deps Deps) (*Handler, error) {
	var errs []error
	if deps.STT == nil {
		errs = append(errs, errors.New("gateway: STT provider must not be nil"))
	}
	if deps.LLM == nil {
		errs = append(errs, errors.New("gateway: LLM provider must not be nil"))
	}
	if deps.TTS == nil {
		errs = append(errs, errors.New("gateway: TTS provider must not be nil"))
	}
	if deps.Config == nil {
		errs = append(errs, errors.New("gateway: config port must not be nil"))
	}
	if deps.Policy == nil {
		errs = append(errs, errors.New("gateway: call policy must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}
	if deps.ReadLimit <= 0 {
		deps.ReadLimit = DefaultReadLimit
	}

	h := &Handler{deps: deps, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET "+RouteSimulator, h.route(audio.ClientBrowser))
	h.mux.HandleFunc("GET "+RouteTwilio, h.route(audio.ClientTwilio))
	h.mux.HandleFunc("GET "+RouteTelnyx, h.route(audio.ClientTelnyx))
	h.mux.HandleFunc("GET "+RouteMediaStream, h.mediaStream)
	h.mux.HandleFunc("POST "+RouteResetGlobalStop, h.resetGlobalStop)
	h.mux.HandleFunc("GET "+RouteGlobalStop, h.globalStop)
	return h, nil
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Wait blocks until every call in progress has finished its Stop, or ctx
// is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) route(clientType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveCall(w, r, clientType)
	}
}

func (h *Handler) mediaStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ct := strings.ToLower(firstNonEmpty(q.Get("client_type"), q.Get("client")))
	switch ct {
	case audio.ClientTwilio, audio.ClientTelnyx:
		h.serveCall(w, r, ct)
	case "":
		h.serveCall(w, r, audio.ClientTwilio)
	default:
		http.Error(w, "unsupported client_type", http.StatusBadRequest)
	}
}

// serveCall runs one call from upgrade to close.
func (h *Handler) serveCall(w http.ResponseWriter, r *http.Request, clientType string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.deps.AllowedOrigins,
	})
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "client_type", clientType, "err", err)
		return
	}

	if !h.deps.Policy.IsCallsAllowed() {
		slog.Warn("gateway: rejecting call, global stop active", "client_type", clientType)
		_ = conn.Close(websocket.StatusInternalError, StopReason)
		return
	}
	h.calls.Add(1)
	defer h.calls.Done()
	conn.SetReadLimit(h.deps.ReadLimit)

	q := r.URL.Query()
	c := &call{
		h:          h,
		conn:       conn,
		clientType: clientType,
		agentID:    parseAgentID(q.Get("agent_id")),
		transport:  transport.New(clientType, conn),
	}
	if clientType == audio.ClientBrowser {
		c.streamID = firstNonEmpty(q.Get("client_id"), q.Get("call_control_id"), uuid.NewString())
	} else {
		c.queryStreamID = strings.TrimSpace(q.Get("call_control_id"))
	}
	c.run(r.Context())
}

func (h *Handler) newOrchestrator(c *call) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithClientType(c.clientType),
		orchestrator.WithAgentID(c.agentID),
		orchestrator.WithStreamID(c.streamID),
		orchestrator.WithEchoWindow(h.deps.EchoWindow),
		orchestrator.WithLLMs(h.deps.LLMs),
	}
	if h.deps.Store != nil {
		opts = append(opts, orchestrator.WithPersistence(h.deps.Store))
	}
	if h.deps.Extractor != nil {
		opts = append(opts, orchestrator.WithExtractor(h.deps.Extractor))
	}
	if h.deps.Events != nil {
		opts = append(opts, orchestrator.WithEvents(h.deps.Events))
	}
	if h.deps.Metrics != nil {
		opts = append(opts, orchestrator.WithMetrics(h.deps.Metrics))
	}
	return orchestrator.New(c.transport, h.deps.STT, h.deps.LLM, h.deps.TTS, h.deps.Config, opts...)
}

// parseAgentID returns the agent id from a query value, or the default
// agent for missing or invalid values.
func parseAgentID(v string) int {
	id, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || id <= 0 {
		return callconfig.DefaultAgentID
	}
	return id
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// reportCritical forwards a critical call error to the global policy. Errors
// raised after the caller hung up are logged only.
func (h *Handler) reportCritical(ctx context.Context, c *call, err error) {
	var cce *orchestrator.CriticalCallError
	if !errors.As(err, &cce) {
		return
	}
	if ctx.Err() != nil {
		slog.Info("gateway: call dropped mid-turn, not counted against the policy",
			"client_type", c.clientType, "stream_id", c.streamID, "reason", cce.Reason)
		return
	}
	callID := firstNonEmpty(cce.CallID, c.streamID)
	h.deps.Policy.ReportCriticalError(context.WithoutCancel(ctx), cce.Reason, callID, c.clientType)
}
