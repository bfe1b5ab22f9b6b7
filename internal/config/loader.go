package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxcall/internal/callconfig"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultLLM         = "groq"
	DefaultLLMModel    = callconfig.DefaultLLMModel
	DefaultSTT         = "groq"
	DefaultTTS         = "azure"
	DefaultStopTimeout = 10 * time.Second
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"groq", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "llamacpp", "llamafile"},
	"stt": {"groq", "whisper", "google", "deepgram"},
	"tts": {"azure", "elevenlabs"},
}

// LoadDotEnv loads environment variables from the given .env files (".env"
// when none are given). Missing files are ignored; variables already set in
// the environment are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, expands ${VAR}
// references from the environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Environment references are expanded as in [Load].
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultLLM
		if cfg.Providers.LLM.Model == "" {
			cfg.Providers.LLM.Model = DefaultLLMModel
		}
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = DefaultSTT
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = DefaultTTS
	}
	if cfg.Providers.Extraction.Name == "" {
		cfg.Providers.Extraction = cfg.Providers.LLM
	}
	if cfg.Database.AgentSource == "" {
		cfg.Database.AgentSource = AgentSourceFile
	}
	if cfg.Call.StopTimeout == 0 {
		cfg.Call.StopTimeout = DefaultStopTimeout
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	for _, p := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
	} {
		kind, entry := p.kind, p.entry
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
			continue
		}
		validateProviderName(kind, entry.Name)
		fbs, err := entry.Fallbacks()
		if err != nil {
			errs = append(errs, fmt.Errorf("providers.%s.options.fallbacks: %w", kind, err))
		}
		for i, fb := range fbs {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.options.fallbacks[%d].name is required", kind, i))
			}
			validateProviderName(kind, fb.Name)
		}
	}
	validateProviderName("llm", cfg.Providers.Extraction.Name)

	if !cfg.Database.AgentSource.IsValid() {
		errs = append(errs, fmt.Errorf("database.agent_source %q is invalid; valid values: file, postgres", cfg.Database.AgentSource))
	}
	if cfg.Database.AgentSource == AgentSourcePostgres && cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.agent_source postgres requires database.postgres_dsn"))
	}

	if cfg.Policy.MaxErrorsInWindow < 0 {
		errs = append(errs, fmt.Errorf("policy.max_errors_in_window %d must not be negative", cfg.Policy.MaxErrorsInWindow))
	}
	if cfg.Policy.WindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("policy.window_seconds %.1f must not be negative", cfg.Policy.WindowSeconds))
	}

	if w := cfg.Call.EchoWindow; w != nil && *w < 0 {
		errs = append(errs, fmt.Errorf("call.echo_window %v must not be negative", *w))
	}
	if cfg.Call.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("call.stop_timeout %v must not be negative", cfg.Call.StopTimeout))
	}

	seen := make(map[int]int, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if prev, ok := seen[a.ID]; ok {
			errs = append(errs, fmt.Errorf("agents[%d].id %d is a duplicate of agents[%d]", i, a.ID, prev))
		}
		seen[a.ID] = i
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("agents[%d]: %w", i, err))
		}
	}
	if cfg.Database.AgentSource == AgentSourceFile && len(cfg.Agents) == 0 {
		slog.Warn("config: no agents configured; serving a default agent with id 1")
	}

	return errors.Join(errs...)
}

// Fallbacks decodes the "fallbacks" option: a list of provider entries tried
// in order when this one fails.
func (e ProviderEntry) Fallbacks() ([]ProviderEntry, error) {
	raw, ok := e.Options["fallbacks"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out []ProviderEntry
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OptString returns the string option key, or "" when absent or not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option key, or 0 when absent or not a number.
func (e ProviderEntry) OptFloat(key string) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
