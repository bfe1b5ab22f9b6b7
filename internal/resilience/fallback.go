package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the per-member errors when no member of a
// [FallbackGroup] served a call.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the template for every member's breaker. Its Name is
// replaced by the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable providers, each behind
// its own [CircuitBreaker]. Calls go to the first member whose breaker admits
// them. Members are added before the group is shared.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member that is tried after the existing ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Len counts the members, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// States maps member names to their breaker state.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.members))
	for _, m := range fg.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Execute runs fn against the members in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. Once ctx is done no further member is tried and the context's error
// is returned.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var errs []error
	for i, m := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := m.breaker.Execute(func() (err error) {
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("resilience: served by fallback", "provider", m.name)
			}
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: circuit open, skipping", "provider", m.name)
		case ctx.Err() != nil:
			return zero, err
		default:
			slog.Warn("resilience: provider failed", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
