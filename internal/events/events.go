// Package events publishes call lifecycle events to downstream consumers
// such as CRMs and analytics jobs.
package events

import (
	"context"
	"time"
)

// RoutingKeyCallEnded is the default routing key of [CallEnded] messages.
const RoutingKeyCallEnded = "call.ended"

// CallEnded is emitted once per call after the transcript has been flushed.
type CallEnded struct {
	StreamID   string         `json:"stream_id"`
	CallID     string         `json:"call_id,omitempty"`
	ClientType string         `json:"client_type"`
	AgentID    int            `json:"agent_id"`
	Turns      int            `json:"turns"`
	Extraction map[string]any `json:"extraction,omitempty"`
	EndedAt    time.Time      `json:"ended_at"`
}

// Publisher delivers call events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishCallEnded(ctx context.Context, ev CallEnded) error
}

// Nop discards every event.
type Nop struct{}

// PublishCallEnded implements [Publisher].
func (Nop) PublishCallEnded(context.Context, CallEnded) error { return nil }

var _ Publisher = Nop{}
