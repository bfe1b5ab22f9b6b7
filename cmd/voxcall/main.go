// Command voxcall serves the voice agent: it accepts browser, Twilio and
// Telnyx media streams and runs every call through STT, the agent LLM and
// TTS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/voxcall/internal/app"
	"github.com/MrWong99/voxcall/internal/config"
	"github.com/MrWong99/voxcall/internal/observe"
)

// version is stamped by the release build via -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 15 * time.Second

type flags struct {
	config string
	env    string
	watch  bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "config.yaml", "YAML configuration file")
	flag.StringVar(&f.env, "env", ".env", ".env file loaded before the config; ignored when missing")
	flag.BoolVar(&f.watch, "watch", true, "apply agent and log level edits to the config file without a restart")
	flag.Parse()
	os.Exit(run(f))
}

func run(f flags) int {
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxcall: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Setup(ctx, observe.TelemetryConfig{
		ServiceVersion: version,
		Environment:    os.Getenv("VOXCALL_ENV"),
	})
	if err != nil {
		slog.Error("telemetry setup failed", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	b := &builder{reg: reg}
	defer b.close()
	providers, err := b.build(cfg)
	if err != nil {
		slog.Error("provider setup failed", "err", err)
		return 1
	}

	var opts []app.Option
	if f.watch {
		opts = append(opts, app.WithConfigWatch(f.config, level))
	}
	a, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("application setup failed", "err", err)
		return 1
	}
	go reloadOnHangup(ctx, a)

	writeSummary(os.Stderr, cfg)
	slog.Info("voxcall serving", "version", version, "config", f.config, "listen_addr", cfg.Server.ListenAddr)

	code := 0
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped", "err", err)
		code = 1
	}

	// ── Shutdown ──
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	slog.Info("shutting down", "grace", shutdownGrace)
	if err := a.Shutdown(sctx); err != nil {
		slog.Error("shutdown incomplete", "err", err)
		code = 1
	}
	if err := tel.Shutdown(sctx); err != nil {
		slog.Warn("telemetry flush failed", "err", err)
	}
	return code
}

func loadConfig(f flags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.env); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.config)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; start from configs/example.yaml", f.config)
	}
	return cfg, err
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			slog.Info("SIGHUP: reloading config")
			a.ReloadConfig()
		}
	}
}

// writeSummary prints the effective provider and backend choices once at
// startup.
func writeSummary(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "  %s\t%s\n", k, v) }

	fmt.Fprintln(tw, "voxcall "+version)
	for _, p := range []struct {
		kind  string
		entry config.ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
		{"extraction", cfg.Providers.Extraction},
	} {
		row(p.kind, describeProvider(p.entry))
	}
	row("database", enabled(cfg.Database.PostgresDSN != "", "postgres"))
	row("events", enabled(cfg.Events.AMQPURL != "", "amqp"))
	row("agents", fmt.Sprint(len(cfg.Agents)))
	row("listen", cfg.Server.ListenAddr)
	tw.Flush()
}

func describeProvider(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "-"
	case e.Model == "":
		return e.Name
	default:
		return e.Name + " (" + e.Model + ")"
	}
}

func enabled(on bool, name string) string {
	if on {
		return name
	}
	return "off"
}
