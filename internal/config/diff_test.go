package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Agents: []callconfig.Agent{{ID: 1, Profile: callconfig.AgentProfile{SystemPrompt: "hola"}}},
	}
	d := config.Diff(cfg, cfg)
	if d.AgentsChanged || d.LogLevelChanged || len(d.AgentChanges) != 0 {
		t.Errorf("Diff(identical) = %+v, want no changes", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_Agents(t *testing.T) {
	t.Parallel()

	old := &config.Config{Agents: []callconfig.Agent{
		{ID: 1, Profile: callconfig.AgentProfile{SystemPrompt: "a"}},
		{ID: 2, Profile: callconfig.AgentProfile{VoiceName: "es-MX-DaliaNeural"}},
		{ID: 3},
	}}
	new := &config.Config{Agents: []callconfig.Agent{
		{ID: 1, Profile: callconfig.AgentProfile{SystemPrompt: "b"}},
		{ID: 2, Profile: callconfig.AgentProfile{VoiceName: "es-MX-DaliaNeural"},
			Overlays: map[string]callconfig.AgentProfile{"twilio": {VoiceSpeed: 1.2}}},
		{ID: 4},
	}}

	d := config.Diff(old, new)
	if !d.AgentsChanged {
		t.Fatal("expected AgentsChanged=true")
	}
	want := []config.AgentDiff{
		{ID: 1, ProfileChanged: true},
		{ID: 2, OverlaysChanged: true},
		{ID: 3, Removed: true},
		{ID: 4, Added: true},
	}
	if len(d.AgentChanges) != len(want) {
		t.Fatalf("AgentChanges = %+v, want %+v", d.AgentChanges, want)
	}
	for i := range want {
		if d.AgentChanges[i] != want[i] {
			t.Errorf("AgentChanges[%d] = %+v, want %+v", i, d.AgentChanges[i], want[i])
		}
	}
}

func TestDiff_EmptyAndNilOverlaysEqual(t *testing.T) {
	t.Parallel()
	old := &config.Config{Agents: []callconfig.Agent{{ID: 1}}}
	new := &config.Config{Agents: []callconfig.Agent{{ID: 1, Overlays: map[string]callconfig.AgentProfile{}}}}
	if d := config.Diff(old, new); d.AgentsChanged {
		t.Errorf("Diff = %+v, want no changes", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		return &config.Config{
			Server:    config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
			Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "groq"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
		hot    bool
	}{
		{name: "log level only", mutate: func(c *config.Config) { c.Server.LogLevel = config.LogWarn }, hot: true},
		{name: "listen addr", mutate: func(c *config.Config) { c.Server.ListenAddr = ":9090" }, want: []string{"server"}},
		{
			name: "provider and events",
			mutate: func(c *config.Config) {
				c.Providers.LLM.Model = "llama-3.1-8b-instant"
				c.Events.AMQPURL = "amqp://localhost"
			},
			want: []string{"providers", "events"},
		},
		{
			name: "agent and database",
			mutate: func(c *config.Config) {
				c.Agents = []callconfig.Agent{{ID: 1}}
				c.Database.PostgresDSN = "postgres://localhost/voxcall"
			},
			want: []string{"database"},
			hot:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old, new := base(), base()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !slices.Equal(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.want)
			}
			if d.HotReloadable() != tt.hot {
				t.Errorf("HotReloadable = %v, want %v", d.HotReloadable(), tt.hot)
			}
		})
	}
}
