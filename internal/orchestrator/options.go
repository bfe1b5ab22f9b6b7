package orchestrator

import (
	"time"

	"github.com/MrWong99/voxcall/internal/events"
	"github.com/MrWong99/voxcall/internal/extraction"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

// DefaultEchoWindow is how long inbound audio is ignored after the agent
// spoke.
const DefaultEchoWindow = 2 * time.Second

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithClientType sets the client type of the connection ("browser",
// "twilio" or "telnyx"). Defaults to "browser".
func WithClientType(clientType string) Option {
	return func(o *Orchestrator) { o.clientType = clientType }
}

// WithAgentID selects the agent profile. Defaults to 1.
func WithAgentID(id int) Option {
	return func(o *Orchestrator) {
		if id > 0 {
			o.agentID = id
		}
	}
}

// WithStreamID sets the external stream identifier. A call record is only
// created when both a stream id and a store are present.
func WithStreamID(id string) Option {
	return func(o *Orchestrator) { o.streamID = id }
}

// WithPersistence stores the call record and transcript in store.
func WithPersistence(store persistence.CallStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithExtractor runs post-call extraction at Stop.
func WithExtractor(e extraction.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithEchoWindow overrides [DefaultEchoWindow]. Zero disables the guard.
func WithEchoWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.echoWindow = d
		}
	}
}

// WithClock replaces time.Now for the echo guard. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLLMs lets the agent's llm_provider pick the call's LLM from byName.
// Names not in byName keep the provider passed to [New].
func WithLLMs(byName map[string]llm.Provider) Option {
	return func(o *Orchestrator) { o.llms = byName }
}

// WithMetrics records call, turn and stage metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEvents publishes a call-ended event at Stop.
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}
