// Package app wires all voxcall subsystems into a running server.
//
// The App struct owns the full lifecycle: New connects storage, the event
// broker and the global call policy and builds the HTTP routes, Run serves
// until the context is cancelled, and Shutdown drains the calls in progress
// and tears everything down in order.
//
// For testing, inject doubles via functional options (WithCallStore,
// WithConfigPort, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/callpolicy"
	"github.com/MrWong99/voxcall/internal/config"
	"github.com/MrWong99/voxcall/internal/events"
	"github.com/MrWong99/voxcall/internal/extraction"
	"github.com/MrWong99/voxcall/internal/gateway"
	"github.com/MrWong99/voxcall/internal/health"
	"github.com/MrWong99/voxcall/internal/observe"
	"github.com/MrWong99/voxcall/internal/orchestrator"
	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/internal/persistence/postgres"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// shutdownGrace bounds the HTTP server shutdown inside Run.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider

	// Extraction runs post-call extraction. Nil reuses LLM.
	Extraction llm.Provider

	// LLMs indexes the configured LLM providers by config name so agents
	// can pick one with llm_provider.
	LLMs map[string]llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	configPath string
	logLevel   *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	pool       *pgxpool.Pool
	store      persistence.CallStore
	configPort callconfig.ConfigPort
	static     *callconfig.StaticSource
	agentStore *postgres.AgentStore
	publisher  events.Publisher
	extractor  extraction.Extractor
	policy     *callpolicy.Policy
	metrics    *observe.Metrics
	gateway    *gateway.Handler
	handler    http.Handler
	server     *http.Server
	watcher    *config.Watcher

	// cancelCalls ends the contexts of calls still connected at shutdown.
	baseCtx     context.Context
	cancelCalls context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCallStore injects a call store instead of connecting to PostgreSQL.
func WithCallStore(s persistence.CallStore) Option {
	return func(a *App) { a.store = s }
}

// WithConfigPort injects the agent configuration source.
func WithConfigPort(p callconfig.ConfigPort) Option {
	return func(a *App) { a.configPort = p }
}

// WithPublisher injects the call event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithPolicy injects the global call policy.
func WithPolicy(p *callpolicy.Policy) Option {
	return func(a *App) { a.policy = p }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch enables hot reload of the agents and the log level from
// the config file at path.
func WithConfigWatch(path string, level *slog.LevelVar) Option {
	return func(a *App) {
		a.configPath = path
		a.logLevel = level
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: database connection and
// migrations, agent seeding, event broker connection, call policy and route
// assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: llm, stt and tts providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Agent source ──────────────────────────────────────────────────
	if err := a.initAgents(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init agents: %w", err)
	}

	// ── 3. Events ────────────────────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 4. Extraction ────────────────────────────────────────────────────
	if err := a.initExtractor(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init extraction: %w", err)
	}

	// ── 5. Policy and metrics ────────────────────────────────────────────
	if a.policy == nil {
		a.policy = callpolicy.New(cfg.Policy.CallPolicy())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 6. Routes ────────────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	dsn := a.cfg.Database.PostgresDSN
	if a.store != nil || dsn == "" {
		if a.store == nil {
			slog.Info("persistence disabled, no postgres_dsn configured")
		}
		return nil
	}
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	a.store = postgres.NewCallStore(pool)
	slog.Info("persistence enabled", "backend", "postgres")
	return nil
}

func (a *App) initAgents(ctx context.Context) error {
	if a.configPort != nil {
		return nil
	}
	if a.cfg.Database.AgentSource == config.AgentSourcePostgres {
		if a.pool == nil {
			return errors.New("agent_source postgres requires a database connection")
		}
		a.agentStore = postgres.NewAgentStore(a.pool)
		for _, ag := range a.cfg.Agents {
			if err := a.agentStore.Upsert(ctx, ag); err != nil {
				return fmt.Errorf("seed agent %d: %w", ag.ID, err)
			}
		}
		a.configPort = a.agentStore
		slog.Info("agent source ready", "source", "postgres", "seeded", len(a.cfg.Agents))
		return nil
	}
	a.static = callconfig.NewStaticSource(a.cfg.Agents)
	a.configPort = a.static
	slog.Info("agent source ready", "source", "file", "agents", a.static.Len())
	return nil
}

func (a *App) initEvents() error {
	if a.publisher != nil {
		return nil
	}
	ec := a.cfg.Events
	if ec.AMQPURL == "" {
		a.publisher = events.Nop{}
		return nil
	}
	pub, err := events.NewAMQPPublisher(ec.AMQPURL,
		events.WithExchange(ec.Exchange),
		events.WithRoutingKey(ec.RoutingKey),
	)
	if err != nil {
		return err
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	slog.Info("event publishing enabled", "exchange", ec.Exchange)
	return nil
}

func (a *App) initExtractor() error {
	p := a.providers.Extraction
	if p == nil {
		p = a.providers.LLM
	}
	var opts []extraction.Option
	if m := a.cfg.Providers.Extraction.Model; m != "" {
		opts = append(opts, extraction.WithModel(m))
	}
	ex, err := extraction.NewLLMExtractor(p, opts...)
	if err != nil {
		return err
	}
	a.extractor = ex
	return nil
}

func (a *App) initHTTP() error {
	echo := orchestrator.DefaultEchoWindow
	if w := a.cfg.Call.EchoWindow; w != nil {
		echo = *w
	}
	gw, err := gateway.New(gateway.Deps{
		STT:            a.providers.STT,
		LLM:            a.providers.LLM,
		LLMs:           a.providers.LLMs,
		TTS:            a.providers.TTS,
		Config:         a.configPort,
		Policy:         a.policy,
		Store:          a.store,
		Extractor:      a.extractor,
		Events:         a.publisher,
		Metrics:        a.metrics,
		EchoWindow:     echo,
		StopTimeout:    a.cfg.Call.StopTimeout,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	a.gateway = gw

	mux := http.NewServeMux()
	health.New(a.checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", gw)
	routes := append([]string{"/healthz", "/readyz", "/metrics"}, gateway.Routes...)
	a.handler = observe.Middleware(a.metrics, routes...)(mux)

	a.baseCtx, a.cancelCalls = context.WithCancel(context.Background())
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return a.baseCtx },
	}
	return nil
}

// checkers builds the readiness checks for the configured subsystems.
func (a *App) checkers() []health.Checker {
	cs := []health.Checker{{Name: "call_policy", Check: a.policy.Check}}
	if a.pool != nil {
		cs = append(cs, health.Checker{Name: "database", Check: postgres.Ping(a.pool)})
	}
	if c, ok := a.publisher.(interface{ Check(context.Context) error }); ok {
		cs = append(cs, health.Checker{Name: "events", Check: c.Check, Optional: true})
	}
	return cs
}

// onConfigChange applies a reloaded config file.
func (a *App) onConfigChange(c config.Change) {
	d := c.Diff
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if !d.AgentsChanged {
		return
	}
	for _, ac := range d.AgentChanges {
		slog.Info("config: agent changed",
			"agent_id", ac.ID,
			"added", ac.Added,
			"removed", ac.Removed,
			"profile", ac.ProfileChanged,
			"overlays", ac.OverlaysChanged,
		)
	}
	switch {
	case a.static != nil:
		a.static.Replace(c.New.Agents)
	case a.agentStore != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		byID := make(map[int]callconfig.Agent, len(c.New.Agents))
		for _, ag := range c.New.Agents {
			byID[ag.ID] = ag
		}
		for _, ac := range d.AgentChanges {
			ag, ok := byID[ac.ID]
			if !ok {
				// Removed agents stay in the table; other tools may own them.
				continue
			}
			if err := a.agentStore.Upsert(ctx, ag); err != nil {
				slog.Warn("config: agent upsert failed", "agent_id", ac.ID, "err", err)
			}
		}
	}
}

// ReloadConfig re-reads the config file now. It does nothing when the app
// was built without [WithConfigWatch].
func (a *App) ReloadConfig() {
	if a.watcher != nil {
		a.watcher.Reload()
	}
}

// SlogLevel maps a config log level to a slog level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Policy returns the global call policy.
func (a *App) Policy() *callpolicy.Policy { return a.policy }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and polls the config file until ctx is cancelled or the
// server fails. It returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the calls still connected, waits for their Stop and the
// pending policy notifications, then runs the closers. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.cancelCalls != nil {
			a.cancelCalls()
		}
		if a.gateway != nil {
			if err := a.gateway.Wait(ctx); err != nil {
				slog.Warn("calls still running at shutdown deadline", "err", err)
				shutdownErr = err
				return
			}
		}
		if a.policy != nil {
			a.policy.Wait()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
