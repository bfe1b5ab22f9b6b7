// Package callpolicy implements the process-wide emergency stop for new
// calls.
//
// Every call that ends with a critical error is reported to the [Policy].
// When MaxErrors reports fall inside a sliding Window the policy trips: new
// calls are refused until an administrator resets it, and a notification
// is sent to the configured webhook. The policy is a single object created
// at process start and shared by every connection handler.
package callpolicy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variables read by [Config.FromEnv].
const (
	EnvMaxErrors  = "GLOBAL_STOP_MAX_ERRORS_IN_WINDOW"
	EnvWindow     = "GLOBAL_STOP_WINDOW_SECONDS"
	EnvWebhookURL = "ADMIN_NOTIFICATION_WEBHOOK_URL"
)

// Defaults for [Config].
const (
	DefaultMaxErrors = 3
	DefaultWindow    = 60 * time.Second
)

// Config holds the trip thresholds.
type Config struct {
	// MaxErrors is the number of critical errors within Window that trips
	// the stop.
	MaxErrors int

	// Window is the sliding time window errors are counted in.
	Window time.Duration

	// WebhookURL receives a POST when the stop trips. Empty disables it.
	WebhookURL string
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{MaxErrors: DefaultMaxErrors, Window: DefaultWindow}
}

// FromEnv returns c with the GLOBAL_STOP_* and ADMIN_NOTIFICATION_WEBHOOK_URL
// environment variables applied on top. Unparseable values are logged and
// ignored.
func (c Config) FromEnv() Config {
	return c.fromLookup(os.LookupEnv)
}

func (c Config) fromLookup(lookup func(string) (string, bool)) Config {
	if v, ok := lookup(EnvMaxErrors); ok && strings.TrimSpace(v) != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.MaxErrors = n
		} else {
			slog.Warn("callpolicy: ignoring invalid env", "key", EnvMaxErrors, "value", v)
		}
	}
	if v, ok := lookup(EnvWindow); ok && strings.TrimSpace(v) != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			c.Window = time.Duration(f * float64(time.Second))
		} else {
			slog.Warn("callpolicy: ignoring invalid env", "key", EnvWindow, "value", v)
		}
	}
	if v, ok := lookup(EnvWebhookURL); ok && strings.TrimSpace(v) != "" {
		c.WebhookURL = strings.TrimSpace(v)
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.MaxErrors <= 0 {
		c.MaxErrors = DefaultMaxErrors
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Snapshot is the observable state of a [Policy].
type Snapshot struct {
	Allowed        bool      `json:"calls_allowed"`
	ErrorsInWindow int       `json:"errors_in_window"`
	MaxErrors      int       `json:"max_errors_in_window"`
	WindowSeconds  float64   `json:"window_seconds"`
	TrippedAt      time.Time `json:"tripped_at,omitzero"`
}

// Policy is the global call stop. It is safe for concurrent use.
type Policy struct {
	cfg      Config
	now      func() time.Time
	notifier Notifier

	mu        sync.Mutex
	allowed   bool
	errors    []time.Time
	trippedAt time.Time

	notifyWG sync.WaitGroup
}

// Option configures a [Policy].
type Option func(*Policy)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithNotifier replaces the webhook notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Policy) { p.notifier = n }
}

// WithHTTPClient sets the client of the default webhook notifier.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Policy) {
		if w, ok := p.notifier.(*WebhookNotifier); ok && c != nil {
			w.client = c
		}
	}
}

// New returns an open policy. Zero thresholds in cfg fall back to the
// defaults. A webhook notifier is installed when cfg.WebhookURL is set.
func New(cfg Config, opts ...Option) *Policy {
	cfg = cfg.withDefaults()
	p := &Policy{cfg: cfg, now: time.Now, allowed: true}
	if cfg.WebhookURL != "" {
		p.notifier = NewWebhookNotifier(cfg.WebhookURL)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// IsCallsAllowed reports whether new calls may be accepted.
func (p *Policy) IsCallsAllowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allowed
}

// ReportCriticalError records a critical call failure and trips the stop
// when the window threshold is reached. The notification runs in the
// background.
func (p *Policy) ReportCriticalError(ctx context.Context, reason, callID, clientType string) {
	p.mu.Lock()
	now := p.now()
	p.errors = append(p.errors, now)
	p.pruneLocked(now)
	count := len(p.errors)
	tripped := false
	if p.allowed && count >= p.cfg.MaxErrors {
		p.allowed = false
		p.trippedAt = now
		tripped = true
	}
	p.mu.Unlock()

	log := slog.With(
		"reason", reason,
		"call_id", callID,
		"client_type", clientType,
		"error_count_in_window", count,
		"window", p.cfg.Window,
	)
	log.Warn("callpolicy: critical call error reported")
	if !tripped {
		return
	}
	log.Error("callpolicy: global call stop activated")

	if p.notifier == nil {
		return
	}
	alert := Alert{
		Event:              EventStopActivated,
		Reason:             reason,
		CallID:             callID,
		ClientType:         clientType,
		ErrorCountInWindow: count,
	}
	p.notifyWG.Add(1)
	go func() {
		defer p.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WebhookTimeout)
		defer cancel()
		if err := p.notifier.Notify(nctx, alert); err != nil {
			slog.Warn("callpolicy: admin notification failed", "err", err)
		}
	}()
}

// Reset reopens the policy and forgets all recorded errors.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.allowed = true
	p.errors = nil
	p.trippedAt = time.Time{}
	p.mu.Unlock()
	slog.Info("callpolicy: global call stop reset, calls allowed again")
}

// Snapshot returns the current state.
func (p *Policy) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(p.now())
	return Snapshot{
		Allowed:        p.allowed,
		ErrorsInWindow: len(p.errors),
		MaxErrors:      p.cfg.MaxErrors,
		WindowSeconds:  p.cfg.Window.Seconds(),
		TrippedAt:      p.trippedAt,
	}
}

// Wait blocks until all in-flight notifications have finished.
func (p *Policy) Wait() {
	p.notifyWG.Wait()
}

// Check reports an error while the stop is active. It satisfies the
// health.Checker signature.
func (p *Policy) Check(context.Context) error {
	if !p.IsCallsAllowed() {
		return errors.New("global call stop active")
	}
	return nil
}

func (p *Policy) pruneLocked(now time.Time) {
	kept := p.errors[:0]
	for _, t := range p.errors {
		if now.Sub(t) <= p.cfg.Window {
			kept = append(kept, t)
		}
	}
	p.errors = kept
}
