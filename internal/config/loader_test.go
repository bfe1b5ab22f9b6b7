package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxcall/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string // substrings that must appear in the error
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: loud\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "postgres agents without dsn",
			yaml:    "database:\n  agent_source: postgres\n",
			wantErr: []string{"postgres_dsn"},
		},
		{
			name:    "unknown agent source",
			yaml:    "database:\n  agent_source: redis\n",
			wantErr: []string{"database.agent_source"},
		},
		{
			name:    "negative policy values",
			yaml:    "policy:\n  max_errors_in_window: -1\n  window_seconds: -5\n",
			wantErr: []string{"max_errors_in_window", "window_seconds"},
		},
		{
			name:    "negative echo window",
			yaml:    "call:\n  echo_window: -1s\n",
			wantErr: []string{"call.echo_window"},
		},
		{
			name: "duplicate agent ids",
			yaml: `
agents:
  - id: 2
  - id: 2
`,
			wantErr: []string{"duplicate"},
		},
		{
			name: "invalid agent profile",
			yaml: `
agents:
  - id: 0
    profile:
      first_message_mode: shout
`,
			wantErr: []string{"agents[0]", "agent id must be positive", "first_message_mode"},
		},
		{
			name: "fallback without name",
			yaml: `
providers:
  stt:
    name: groq
    options:
      fallbacks:
        - model: x
`,
			wantErr: []string{"providers.stt.options.fallbacks[0].name"},
		},
		{
			name: "valid",
			yaml: `
agents:
  - id: 1
    profile:
      first_message_mode: wait-for-user
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxcall.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 1 {
		t.Errorf("agents = %d, want 1", len(cfg.Agents))
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(missing) err = %v, want not-exist", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "VOXCALL_DOTENV_TEST=from-file\n")
	t.Setenv("VOXCALL_DOTENV_TEST", "")
	os.Unsetenv("VOXCALL_DOTENV_TEST")

	if err := config.LoadDotEnv(path, filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("VOXCALL_DOTENV_TEST"); got != "from-file" {
		t.Errorf("VOXCALL_DOTENV_TEST = %q, want from-file", got)
	}
}
