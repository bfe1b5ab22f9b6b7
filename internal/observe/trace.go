package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voxcall"

// StartSpan starts a span on the global tracer provider. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "" when ctx
// carries no sampled or unsampled span.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// CallInfo identifies the call a context belongs to.
type CallInfo struct {
	// StreamID is the transport's stream identifier.
	StreamID string
	// CallID is the persistence id, once the call record exists.
	CallID     string
	ClientType string
	AgentID    int
}

type callKey struct{}

// WithCall attaches info to ctx. [Logger] adds its fields to every line.
func WithCall(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callKey{}, info)
}

// CallFrom returns the call attached with [WithCall].
func CallFrom(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callKey{}).(CallInfo)
	return info, ok
}

// StreamID returns the stream id of the call attached to ctx, or "".
func StreamID(ctx context.Context) string {
	info, _ := CallFrom(ctx)
	return info.StreamID
}

// Logger returns the default logger enriched with the call fields and the
// trace and span ids found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if info, ok := CallFrom(ctx); ok {
		if info.StreamID != "" {
			attrs = append(attrs, slog.String("stream_id", info.StreamID))
		}
		if info.CallID != "" {
			attrs = append(attrs, slog.String("call_id", info.CallID))
		}
		if info.ClientType != "" {
			attrs = append(attrs, slog.String("client_type", info.ClientType))
		}
		if info.AgentID != 0 {
			attrs = append(attrs, slog.Int("agent_id", info.AgentID))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
