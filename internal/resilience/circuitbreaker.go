// Package resilience provides circuit breaking and failover for the STT, LLM
// and TTS providers a call depends on.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// [FallbackGroup] chains several instances of one provider type, each behind
// its own breaker, so a failing primary is bypassed until it recovers.
// [LLMFallback], [STTFallback] and [TTSFallback] expose a group through the
// provider interfaces, which lets the pipeline use them unchanged.
//
// A call aborted by its own context (the caller hung up) is neither a success
// nor a failure of the provider and leaves breaker state untouched.
//
// All types are safe for concurrent use.
package resilience

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. All probes
	// succeeding closes the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages, usually the provider name.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state. Default: 3.
	HalfOpenMax int

	// Now replaces time.Now. Used by tests.
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker. Closed forwards calls and counts
// consecutive failures; open rejects calls; half-open admits a limited
// number of probes.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	// Probe bookkeeping for the half-open state.
	probesIn, probesOK int
}

// NewCircuitBreaker fills zero config fields with defaults: 5 failures, a
// 30s reset timeout and 3 half-open probes.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cmp.Or(max(cfg.MaxFailures, 0), 5),
		resetTimeout: cmp.Or(max(cfg.ResetTimeout, 0), 30*time.Second),
		halfOpenMax:  cmp.Or(max(cfg.HalfOpenMax, 0), 3),
		now:          cfg.Now,
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute runs fn when the breaker admits it and records the result. An
// error wrapping [context.Canceled] is passed through uncounted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state != StateHalfOpen {
		return false, nil
	}
	if cb.probesIn >= cb.halfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.probesIn++
	return true, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A probe that started before a concurrent transition no longer counts
	// towards the half-open tally.
	stale := probe && cb.state != StateHalfOpen

	switch {
	case errors.Is(err, context.Canceled):
		if probe && !stale {
			cb.probesIn--
		}
	case err != nil:
		cb.openedAt = cb.now()
		if probe {
			cb.failures = cb.maxFailures
			cb.moveTo(StateOpen)
			return
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			cb.moveTo(StateOpen)
		}
	case !probe:
		cb.failures = 0
	case !stale:
		cb.probesOK++
		if cb.probesOK >= cb.halfOpenMax {
			cb.moveTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) >= cb.resetTimeout
}

// moveTo must be called with cb.mu held.
func (cb *CircuitBreaker) moveTo(s State) {
	from := cb.state
	cb.state = s
	switch s {
	case StateClosed:
		cb.failures = 0
		cb.probesIn, cb.probesOK = 0, 0
		slog.Info("resilience: circuit breaker closed", "name", cb.name, "from", from)
	case StateHalfOpen:
		cb.probesIn, cb.probesOK = 0, 0
		slog.Info("resilience: circuit breaker half-open", "name", cb.name)
	case StateOpen:
		slog.Warn("resilience: circuit breaker opened", "name", cb.name, "from", from, "failures", cb.failures)
	}
}

// State reports the current state. An open breaker past its reset timeout
// already reads as [StateHalfOpen]; the switch itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker unconditionally.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed)
}
