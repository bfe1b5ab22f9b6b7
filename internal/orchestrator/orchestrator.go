// Package orchestrator drives one voice call from connect to hang-up.
//
// An [Orchestrator] loads the call configuration, runs every inbound audio
// chunk through the STT → LLM → TTS pipeline and sends the synthesized reply
// back over the call's transport. It owns the conversation history of the
// call and flushes it to persistence when the call stops.
//
// Failure policy: any provider failure during a turn is critical. The
// orchestrator tries to speak the configured apology, closes the transport
// and returns a [*CriticalCallError] so the caller can report it to the
// global call policy. Persistence, extraction and event failures at Stop are
// logged and never surface.
//
// Each orchestrator serves exactly one call and is not reusable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/events"
	"github.com/MrWong99/voxcall/internal/extraction"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/internal/pipeline"
	"github.com/MrWong99/voxcall/internal/transport"
	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/frame"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// State is the lifecycle state of an [Orchestrator].
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Orchestrator runs a single call.
//
// Start, ProcessAudio and Stop are serialised: only one turn is ever in
// flight. The accessors may be called concurrently with them.
type Orchestrator struct {
	transport  transport.Transport
	stt        stt.Provider
	llm        llm.Provider
	llms       map[string]llm.Provider
	tts        tts.Provider
	configPort callconfig.ConfigPort

	clientType string
	agentID    int
	streamID   string
	store      persistence.CallStore
	extractor  extraction.Extractor
	events     events.Publisher
	metrics    *observe.Metrics
	echoWindow time.Duration
	now        func() time.Time

	// turnMu serialises lifecycle operations and turns.
	turnMu        sync.Mutex
	lastTTSSentAt time.Time
	turns         int
	stopped       bool
	closeOnce     sync.Once

	// mu guards the fields read by accessors.
	mu        sync.RWMutex
	state     State
	cfg       callconfig.CallConfig
	history   *pipeline.History
	callID    string
	startedAt time.Time
}

// New returns an orchestrator for one call. Start must be called before
// ProcessAudio.
func New(t transport.Transport, s stt.Provider, l llm.Provider, v tts.Provider, cp callconfig.ConfigPort, opts ...Option) (*Orchestrator, error) {
	switch {
	case t == nil:
		return nil, errors.New("orchestrator: transport must not be nil")
	case s == nil:
		return nil, errors.New("orchestrator: stt provider must not be nil")
	case l == nil:
		return nil, errors.New("orchestrator: llm provider must not be nil")
	case v == nil:
		return nil, errors.New("orchestrator: tts provider must not be nil")
	case cp == nil:
		return nil, errors.New("orchestrator: config port must not be nil")
	}
	o := &Orchestrator{
		transport:  t,
		stt:        s,
		llm:        l,
		tts:        v,
		configPort: cp,
		clientType: audio.ClientBrowser,
		agentID:    callconfig.DefaultAgentID,
		echoWindow: DefaultEchoWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ── Lifecycle ──

// Start loads the call configuration, seeds the conversation history and
// opens the call record. When the agent speaks first, the first message is
// synthesized and sent before Start returns.
//
// A configuration failure closes the transport and returns a
// [*CriticalCallError] whose reason starts with "config_load_failed".
// Calling Start on an orchestrator that is not uninitialized is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if o.State() != StateUninitialized {
		return nil
	}
	ctx = o.callContext(ctx)
	log := observe.Logger(ctx)

	cfg, err := o.configPort.ConfigForCall(ctx, o.clientType, o.agentID)
	if err != nil {
		log.Error("orchestrator: config load failed", "err", err)
		o.closeTransport()
		o.setState(StateClosed)
		o.recordCritical(ctx)
		return &CriticalCallError{Reason: "config_load_failed: " + err.Error(), Err: err}
	}

	if p, ok := o.llms[cfg.LLMProvider]; ok && p != nil {
		o.llm = p
	}

	history := pipeline.NewHistory(cfg.SystemPrompt)
	var callID string
	if o.store != nil && o.streamID != "" {
		callID, err = o.store.CreateCall(ctx, o.streamID, o.clientType)
		if err != nil {
			log.Warn("orchestrator: create call record failed, continuing without persistence", "err", err)
			callID = ""
		}
	}

	o.mu.Lock()
	o.cfg = cfg
	o.history = history
	o.callID = callID
	o.state = StateActive
	o.startedAt = o.now()
	o.mu.Unlock()

	ctx = o.callContext(ctx)
	if o.metrics != nil {
		o.metrics.RecordCallStarted(ctx, o.clientType)
	}
	observe.Logger(ctx).Info("orchestrator: call started", "llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModel, "voice", cfg.VoiceName)

	if cfg.SpeaksFirst() {
		if err := o.speakFirst(ctx, cfg, history); err != nil {
			return o.fail(ctx, fmt.Errorf("first_message_failed: %w", err))
		}
	}
	return nil
}

// ProcessAudio runs one turn for an inbound audio chunk. Chunks arriving
// before Start, after the call closed or inside the echo window are
// dropped. A pipeline failure triggers the apology, closes the transport
// and returns a [*CriticalCallError].
func (o *Orchestrator) ProcessAudio(ctx context.Context, data []byte) error {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if o.State() != StateActive {
		return nil
	}
	ctx = o.callContext(ctx)

	if o.inEchoWindow() {
		observe.Logger(ctx).Debug("orchestrator: dropping audio inside echo window",
			"since_tts", o.now().Sub(o.lastTTSSentAt))
		if o.metrics != nil {
			o.metrics.RecordEchoDropped(ctx, o.clientType)
		}
		return nil
	}

	o.mu.RLock()
	cfg, history := o.cfg, o.history
	o.mu.RUnlock()

	var popts []pipeline.Option
	if o.metrics != nil {
		popts = append(popts, pipeline.WithMetrics(o.metrics))
	}
	p := pipeline.New(pipeline.CallProcessors(o.stt, o.llm, o.tts, cfg, history), popts...)

	start := time.Now()
	result, err := p.Run(ctx, frame.NewAudioFrame(data, cfg.SampleRate), o.liveTranscript)
	if err != nil {
		return o.fail(ctx, err)
	}

	af, ok := result.(frame.AudioFrame)
	if !ok || len(af.Data) == 0 {
		return nil
	}
	o.transport.SendAudio(ctx, af.Data, af.SampleRate)
	o.lastTTSSentAt = o.now()
	o.turns++
	if o.metrics != nil {
		o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// Stop flushes the transcript, runs extraction, publishes the call-ended
// event and closes the transport. Failures are logged and swallowed. Only
// the first call has an effect.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if o.stopped {
		return
	}
	o.stopped = true
	ctx = o.callContext(ctx)
	log := observe.Logger(ctx)

	o.mu.RLock()
	history, callID := o.history, o.callID
	o.mu.RUnlock()

	var extracted map[string]any
	if o.store != nil && callID != "" && history != nil {
		items := history.Transcript()
		if err := o.store.SaveTranscripts(ctx, callID, items); err != nil {
			log.Warn("orchestrator: save transcripts failed", "err", err)
		}
		if o.extractor != nil && o.streamID != "" && len(items) > 0 {
			extracted = o.extractor.Extract(ctx, o.streamID, items)
			if len(extracted) > 0 {
				if err := o.store.UpdateCallExtraction(ctx, callID, extracted); err != nil {
					log.Warn("orchestrator: update extraction failed", "err", err)
				}
			}
		}
		if err := o.store.EndCall(ctx, callID); err != nil {
			log.Warn("orchestrator: end call failed", "err", err)
		}
	}

	if o.events != nil && history != nil {
		ev := events.CallEnded{
			StreamID:   o.streamID,
			CallID:     callID,
			ClientType: o.clientType,
			AgentID:    o.agentID,
			Turns:      o.turns,
			Extraction: extracted,
			EndedAt:    o.now().UTC(),
		}
		if err := o.events.PublishCallEnded(ctx, ev); err != nil {
			log.Warn("orchestrator: publish call ended failed", "err", err)
		}
	}

	o.closeTransport()
	o.setState(StateClosed)
	log.Info("orchestrator: call stopped", "turns", o.turns)
}

// ── Accessors ──

// History returns a snapshot of the conversation, or nil before Start.
func (o *Orchestrator) History() []llm.Message {
	o.mu.RLock()
	h := o.history
	o.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.Messages()
}

// CallID returns the persistence id of the call, or "".
func (o *Orchestrator) CallID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.callID
}

// Config returns the configuration loaded by Start.
func (o *Orchestrator) Config() callconfig.CallConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// StreamID returns the external stream identifier.
func (o *Orchestrator) StreamID() string { return o.streamID }

// ── internals ──

// callContext attaches the call's identity to ctx for logging, replacing
// an earlier attachment once the call record exists.
func (o *Orchestrator) callContext(ctx context.Context) context.Context {
	info := observe.CallInfo{StreamID: o.streamID, CallID: o.CallID(), ClientType: o.clientType, AgentID: o.agentID}
	if cur, ok := observe.CallFrom(ctx); ok && cur == info {
		return ctx
	}
	return observe.WithCall(ctx, info)
}

func (o *Orchestrator) inEchoWindow() bool {
	if o.echoWindow <= 0 || o.lastTTSSentAt.IsZero() {
		return false
	}
	return o.now().Sub(o.lastTTSSentAt) < o.echoWindow
}

// liveTranscript mirrors every text frame to the browser simulator.
func (o *Orchestrator) liveTranscript(ctx context.Context, f frame.Frame) error {
	if o.clientType != audio.ClientBrowser {
		return nil
	}
	tf, ok := f.(frame.TextFrame)
	if !ok {
		return nil
	}
	if !o.transport.IsConnected() {
		return errors.New("transport disconnected")
	}
	o.transport.SendJSON(ctx, transcriptMessage{Type: "transcript", Role: string(tf.Role), Text: tf.Text})
	return nil
}

type transcriptMessage struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// fail runs the apology-and-close sequence and builds the critical error.
// Must be called with turnMu held.
func (o *Orchestrator) fail(ctx context.Context, cause error) error {
	callID := o.CallID()
	observe.Logger(ctx).Error("orchestrator: critical error", "err", cause)
	o.apologize(ctx)
	o.closeTransport()
	o.setState(StateClosed)
	o.recordCritical(ctx)
	return &CriticalCallError{Reason: cause.Error(), CallID: callID, Err: cause}
}

func (o *Orchestrator) closeTransport() {
	o.closeOnce.Do(o.transport.Close)
}

// setState moves to s and keeps the active-calls gauge balanced.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	length := o.now().Sub(o.startedAt)
	o.mu.Unlock()
	if prev == StateActive && s != StateActive && o.metrics != nil {
		o.metrics.RecordCallEnded(context.Background(), o.clientType, length)
	}
}

func (o *Orchestrator) recordCritical(ctx context.Context) {
	if o.metrics != nil {
		o.metrics.RecordCriticalError(ctx, o.clientType)
	}
}
