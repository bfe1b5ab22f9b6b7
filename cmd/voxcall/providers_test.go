package main

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxcall/internal/config"
	"github.com/MrWong99/voxcall/internal/resilience"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxcall/pkg/provider/llm/mock"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxcall/pkg/provider/stt/mock"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxcall/pkg/provider/tts/mock"
)

type closingSTT struct {
	sttmock.Provider
	closed int
}

func (c *closingSTT) Close() error { c.closed++; return nil }

func mockRegistry(closer *closingSTT) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return closer, nil })
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	return reg
}

func mockConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "mock", Model: "m1"},
			STT: config.ProviderEntry{Name: "mock"},
			TTS: config.ProviderEntry{Name: "mock"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestBuilder_Plain(t *testing.T) {
	closer := &closingSTT{}
	b := &builder{reg: mockRegistry(closer)}

	ps, err := b.build(mockConfig())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := ps.LLM.(*llmmock.Provider); !ok {
		t.Errorf("LLM = %T, want *llmmock.Provider", ps.LLM)
	}
	if ps.Extraction != ps.LLM {
		t.Error("extraction should reuse the LLM provider when the entries match")
	}

	b.close()
	if closer.closed != 1 {
		t.Errorf("STT closed %d times, want 1", closer.closed)
	}
}

func TestBuilder_LLMsByName(t *testing.T) {
	b := &builder{reg: mockRegistry(&closingSTT{})}
	cfg := mockConfig()
	cfg.Providers.Extraction = config.ProviderEntry{Name: "backup"}

	ps, err := b.build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(ps.LLMs) != 2 {
		t.Fatalf("LLMs = %v, want mock and backup", ps.LLMs)
	}
	if ps.LLMs["mock"] != ps.LLM {
		t.Error(`LLMs["mock"] should be the primary LLM`)
	}
	if ps.LLMs["backup"] != ps.Extraction {
		t.Error(`LLMs["backup"] should be the extraction LLM`)
	}
}

func TestBuilder_Fallbacks(t *testing.T) {
	b := &builder{reg: mockRegistry(&closingSTT{})}
	cfg := mockConfig()
	cfg.Providers.LLM.Options = map[string]any{
		"fallbacks": []any{map[string]any{"name": "backup", "model": "m2"}},
	}
	cfg.Providers.Extraction = config.ProviderEntry{Name: "backup", Model: "m3"}

	ps, err := b.build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	fb, ok := ps.LLM.(*resilience.LLMFallback)
	if !ok {
		t.Fatalf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	states := fb.States()
	if len(states) != 2 {
		t.Errorf("fallback entries = %d, want 2", len(states))
	}
	if _, ok := states["backup"]; !ok {
		t.Errorf("states = %v, want a backup entry", states)
	}
	if _, ok := ps.Extraction.(*llmmock.Provider); !ok {
		t.Errorf("Extraction = %T, want its own *llmmock.Provider", ps.Extraction)
	}
}

func TestBuilder_UnknownProvider(t *testing.T) {
	b := &builder{reg: mockRegistry(&closingSTT{})}
	cfg := mockConfig()
	cfg.Providers.TTS.Name = "nope"

	_, err := b.build(cfg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuilder_UnknownFallback(t *testing.T) {
	b := &builder{reg: mockRegistry(&closingSTT{})}
	cfg := mockConfig()
	cfg.Providers.STT.Options = map[string]any{
		"fallbacks": []any{map[string]any{"name": "missing"}},
	}

	_, err := b.build(cfg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	names := reg.Names()
	for kind, want := range config.ValidProviderNames {
		got := make(map[string]bool)
		for _, n := range names[kind] {
			got[n] = true
		}
		for _, n := range want {
			if !got[n] {
				t.Errorf("%s provider %q not registered", kind, n)
			}
		}
	}
}
