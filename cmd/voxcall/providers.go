package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/MrWong99/voxcall/internal/app"
	"github.com/MrWong99/voxcall/internal/config"
	"github.com/MrWong99/voxcall/internal/resilience"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/voxcall/pkg/provider/llm/openai"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxcall/pkg/provider/stt/google"
	"github.com/MrWong99/voxcall/pkg/provider/stt/groq"
	"github.com/MrWong99/voxcall/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
	"github.com/MrWong99/voxcall/pkg/provider/tts/azure"
	"github.com/MrWong99/voxcall/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// groq and openai go through the OpenAI SDK, which supports JSON mode for
	// extraction. Everything else goes through any-llm-go.
	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.NewGroq(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// groq and openai are served by openai-go above; the rest go through any-llm-go.
	for _, backend := range anyllm.Backends() {
		if backend == "groq" || backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(anyllm.Config{
				Backend: backend,
				Model:   entry.Model,
				APIKey:  entry.APIKey,
				BaseURL: entry.BaseURL,
			})
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("groq", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []groq.Option
		if entry.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, groq.WithModel(entry.Model))
		}
		if v := entry.OptFloat("rms_threshold"); v != 0 {
			opts = append(opts, groq.WithRMSThreshold(v))
		}
		return groq.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if v := entry.OptFloat("rms_threshold"); v != 0 {
			opts = append(opts, whisper.WithGate(stt.SpeechGate{RMSThreshold: v}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if v := entry.OptFloat("rms_threshold"); v != 0 {
			opts = append(opts, deepgram.WithGate(stt.SpeechGate{RMSThreshold: v}))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []google.Option
		if entry.APIKey != "" {
			opts = append(opts, google.WithAPIKey(entry.APIKey))
		}
		if f := entry.OptString("credentials_file"); f != "" {
			opts = append(opts, google.WithCredentialsFile(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, google.WithModel(entry.Model))
		}
		if v := entry.OptFloat("rms_threshold"); v != 0 {
			opts = append(opts, google.WithRMSThreshold(v))
		}
		return google.New(context.Background(), opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("azure", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []azure.Option
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		return azure.New(entry.APIKey, entry.OptString("region"), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		stability, similarity := entry.OptFloat("stability"), entry.OptFloat("similarity_boost")
		if stability != 0 || similarity != 0 {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// builder instantiates the configured providers and remembers the ones that
// hold connections.
type builder struct {
	reg     *config.Registry
	closers []io.Closer
}

// build instantiates all providers named in cfg. Entries listing
// options.fallbacks are wrapped in a circuit-breaking fallback group.
func (b *builder) build(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.LLM, err = b.llm(cfg.Providers.LLM); err != nil {
		return nil, err
	}
	if ps.STT, err = b.stt(cfg.Providers.STT); err != nil {
		return nil, err
	}
	if ps.TTS, err = b.tts(cfg.Providers.TTS); err != nil {
		return nil, err
	}

	ext := cfg.Providers.Extraction
	if sameEndpoint(ext, cfg.Providers.LLM) {
		ps.Extraction = ps.LLM
	} else if ps.Extraction, err = b.llm(ext); err != nil {
		return nil, err
	}

	ps.LLMs = map[string]llm.Provider{cfg.Providers.LLM.Name: ps.LLM}
	if ext.Name != "" {
		if _, ok := ps.LLMs[ext.Name]; !ok {
			ps.LLMs[ext.Name] = ps.Extraction
		}
	}
	return ps, nil
}

func (b *builder) llm(entry config.ProviderEntry) (llm.Provider, error) {
	p, err := b.reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	b.track(p)
	slog.Info("provider created", "kind", "llm", "name", entry.Name)

	fbs, err := entry.Fallbacks()
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: fallbacks: %w", entry.Name, err)
	}
	if len(fbs) == 0 {
		return p, nil
	}
	group := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
	for _, fb := range fbs {
		fp, err := b.reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		b.track(fp)
		group.AddFallback(fb.Name, fp)
		slog.Info("fallback provider added", "kind", "llm", "name", fb.Name)
	}
	return group, nil
}

func (b *builder) stt(entry config.ProviderEntry) (stt.Provider, error) {
	p, err := b.reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	b.track(p)
	slog.Info("provider created", "kind", "stt", "name", entry.Name)

	fbs, err := entry.Fallbacks()
	if err != nil {
		return nil, fmt.Errorf("stt provider %q: fallbacks: %w", entry.Name, err)
	}
	if len(fbs) == 0 {
		return p, nil
	}
	group := resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{})
	for _, fb := range fbs {
		fp, err := b.reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		b.track(fp)
		group.AddFallback(fb.Name, fp)
		slog.Info("fallback provider added", "kind", "stt", "name", fb.Name)
	}
	return group, nil
}

func (b *builder) tts(entry config.ProviderEntry) (tts.Provider, error) {
	p, err := b.reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	b.track(p)
	slog.Info("provider created", "kind", "tts", "name", entry.Name)

	fbs, err := entry.Fallbacks()
	if err != nil {
		return nil, fmt.Errorf("tts provider %q: fallbacks: %w", entry.Name, err)
	}
	if len(fbs) == 0 {
		return p, nil
	}
	group := resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{})
	for _, fb := range fbs {
		fp, err := b.reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		b.track(fp)
		group.AddFallback(fb.Name, fp)
		slog.Info("fallback provider added", "kind", "tts", "name", fb.Name)
	}
	return group, nil
}

func (b *builder) track(p any) {
	if c, ok := p.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
}

// close releases provider connections, e.g. the Google Speech gRPC client.
func (b *builder) close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// sameEndpoint reports whether two entries would build the same provider.
func sameEndpoint(a, b config.ProviderEntry) bool {
	return reflect.DeepEqual(a, b)
}
