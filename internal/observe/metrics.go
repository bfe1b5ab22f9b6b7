// Package observe wires OpenTelemetry metrics and tracing into voxcall and
// provides the call-scoped logger used throughout the server.
//
// Instruments are created from whatever [metric.MeterProvider] is passed to
// [NewMetrics]. Production code uses [DefaultMetrics], which reads the
// global provider installed by [Setup]; tests pass a provider backed by a
// manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/voxcall"

// Pipeline stage names used as the "stage" attribute.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Metrics holds the instruments recorded by the call path. The zero value
// is not usable; build one with [NewMetrics].
type Metrics struct {
	// StageDuration is the latency of one pipeline stage, by stage.
	StageDuration metric.Float64Histogram

	// StageRequests counts stage invocations, by stage and status.
	StageRequests metric.Int64Counter

	// TurnDuration is the latency from caller audio to agent audio.
	TurnDuration metric.Float64Histogram

	// CallDuration is the length of finished calls, by client_type.
	CallDuration metric.Float64Histogram

	CallsTotal     metric.Int64Counter
	CallsActive    metric.Int64UpDownCounter
	CriticalErrors metric.Int64Counter

	// EchoDropped counts inbound chunks discarded while the agent's own
	// audio may still be echoing back.
	EchoDropped metric.Int64Counter

	// HTTPRequestDuration is recorded by [Middleware], by method, route and
	// status.
	HTTPRequestDuration metric.Float64Histogram
}

var (
	stageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10}
	callBuckets  = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800}
)

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	for _, h := range []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.StageDuration, "voxcall.stage.duration", "Latency of a pipeline stage.", stageBuckets},
		{&met.TurnDuration, "voxcall.turn.duration", "Latency from caller audio to agent audio.", stageBuckets},
		{&met.CallDuration, "voxcall.call.duration", "Length of finished calls.", callBuckets},
		{&met.HTTPRequestDuration, "voxcall.http.request.duration", "Latency of non-WebSocket HTTP requests.", nil},
	} {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		if *h.dst, err = m.Float64Histogram(h.name, opts...); err != nil {
			return nil, err
		}
	}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.StageRequests, "voxcall.stage.requests", "Pipeline stage invocations by stage and status."},
		{&met.CallsTotal, "voxcall.calls.total", "Calls started by client type."},
		{&met.CriticalErrors, "voxcall.calls.critical_errors", "Calls ended by a critical error."},
		{&met.EchoDropped, "voxcall.echo.dropped", "Inbound audio chunks dropped inside the echo window."},
	} {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.CallsActive, err = m.Int64UpDownCounter("voxcall.calls.active",
		metric.WithDescription("Calls currently in progress."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records one invocation of a pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
	m.StageRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

func clientAttr(clientType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("client_type", clientType))
}

// RecordCallStarted counts a new call and adds it to the active gauge.
func (m *Metrics) RecordCallStarted(ctx context.Context, clientType string) {
	m.CallsTotal.Add(ctx, 1, clientAttr(clientType))
	m.CallsActive.Add(ctx, 1, clientAttr(clientType))
}

// RecordCallEnded removes a call from the active gauge and records its
// length.
func (m *Metrics) RecordCallEnded(ctx context.Context, clientType string, length time.Duration) {
	m.CallsActive.Add(ctx, -1, clientAttr(clientType))
	m.CallDuration.Record(ctx, length.Seconds(), clientAttr(clientType))
}

func (m *Metrics) RecordCriticalError(ctx context.Context, clientType string) {
	m.CriticalErrors.Add(ctx, 1, clientAttr(clientType))
}

func (m *Metrics) RecordEchoDropped(ctx context.Context, clientType string) {
	m.EchoDropped.Add(ctx, 1, clientAttr(clientType))
}
