// Package pipeline runs a frame through an ordered chain of processors.
//
// A call turn is Pipeline([STT, LLM, TTS]): an [frame.AudioFrame] from the
// caller becomes a user [frame.TextFrame], then an assistant TextFrame, then
// an AudioFrame of synthesized speech. A processor returning a nil frame
// stops the run without error; that is how silence and empty replies are
// dropped.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/pkg/frame"
)

// Processor is one stage of a [Pipeline].
type Processor interface {
	// Name identifies the stage in errors, spans and metrics.
	Name() string

	// Process transforms f. A nil frame with a nil error means the result is
	// absent and the pipeline stops. Frames the processor does not handle are
	// returned unchanged.
	Process(ctx context.Context, f frame.Frame) (frame.Frame, error)
}

// Observer is invoked after every stage that produced a frame. Errors are
// logged and never change control flow.
type Observer func(ctx context.Context, f frame.Frame) error

// Pipeline is an ordered list of processors. It holds no per-run state and
// may be reused.
type Pipeline struct {
	processors []Processor
	metrics    *observe.Metrics
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics records a stage duration histogram and provider error counter
// for every stage.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New returns a pipeline running processors in order.
func New(processors []Processor, opts ...Option) *Pipeline {
	p := &Pipeline{processors: processors}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run pushes f through every processor. It returns the final frame, or nil
// when a stage produced no result. A stage error stops the run and is
// returned wrapped with the stage name.
func (p *Pipeline) Run(ctx context.Context, f frame.Frame, onFrame Observer) (frame.Frame, error) {
	cur := f
	for _, proc := range p.processors {
		next, err := p.step(ctx, proc, cur)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %s: %w", proc.Name(), err)
		}
		if next == nil {
			return nil, nil
		}
		if onFrame != nil {
			if oerr := onFrame(ctx, next); oerr != nil {
				observe.Logger(ctx).Warn("pipeline: frame observer failed",
					"stage", proc.Name(), "trace_id", next.TraceID(), "err", oerr)
			}
		}
		cur = next
	}
	return cur, nil
}

func (p *Pipeline) step(ctx context.Context, proc Processor, f frame.Frame) (frame.Frame, error) {
	name := proc.Name()
	ctx, span := observe.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	out, err := proc.Process(ctx, f)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordStage(ctx, name, elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	slog.Debug("pipeline: stage done", "stage", name, "elapsed", elapsed, "absent", out == nil)
	return out, nil
}
