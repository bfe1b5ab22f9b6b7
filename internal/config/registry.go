package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/voxcall/pkg/provider/llm"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
	"github.com/MrWong99/voxcall/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a [ProviderEntry] names a
// provider nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one provider kind's name table. The owning Registry's mutex
// guards it.
type factories[P any] struct {
	kind string
	byID map[string]Factory[P]
}

func newFactories[P any](kind string) factories[P] {
	return factories[P]{kind: kind, byID: map[string]Factory[P]{}}
}

func (f factories[P]) create(entry ProviderEntry, mu *sync.RWMutex) (P, error) {
	mu.RLock()
	mk, ok := f.byID[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return mk(entry)
}

func (f factories[P]) names() []string {
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry resolves provider names from the config to constructors. The last
// registration under a name wins. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

func (r *Registry) RegisterLLM(name string, mk Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.byID[name] = mk
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, mk Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.byID[name] = mk
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, mk Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.byID[name] = mk
	r.mu.Unlock()
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry, &r.mu)
}

// CreateSTT builds the STT provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry, &r.mu)
}

// CreateTTS builds the TTS provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry, &r.mu)
}

// Names lists the registered names per kind, keyed "llm", "stt" and "tts".
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.llm.kind: r.llm.names(),
		r.stt.kind: r.stt.names(),
		r.tts.kind: r.tts.names(),
	}
}
