package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/voxcall/internal/app"
	"github.com/MrWong99/voxcall/internal/callconfig"
	"github.com/MrWong99/voxcall/internal/callpolicy"
	"github.com/MrWong99/voxcall/internal/config"
	"github.com/MrWong99/voxcall/internal/events"
	storemock "github.com/MrWong99/voxcall/internal/persistence/mock"
	llmmock "github.com/MrWong99/voxcall/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/voxcall/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/voxcall/pkg/provider/tts/mock"
)

// testConfig returns a minimal config with one agent for tests.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Agents: []callconfig.Agent{
			{ID: 1, Profile: callconfig.AgentProfile{SystemPrompt: "Eres un asistente."}},
		},
	}
}

// testProviders returns mock providers for every pipeline stage.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{},
		STT: &sttmock.Provider{},
		TTS: &ttsmock.Provider{},
	}
}

func newTestApp(t *testing.T, opts ...app.Option) (*app.App, *callpolicy.Policy) {
	t.Helper()
	policy := callpolicy.New(callpolicy.Config{MaxErrors: 1, Window: time.Minute})
	opts = append([]app.Option{
		app.WithCallStore(&storemock.Store{}),
		app.WithPublisher(events.Nop{}),
		app.WithPolicy(policy),
	}, opts...)
	a, err := app.New(context.Background(), testConfig(), testProviders(), opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, policy
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{LLM: &llmmock.Provider{}})
	if err == nil {
		t.Fatal("expected error when STT and TTS are missing")
	}
	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("expected error for nil providers")
	}
}

func TestNew_PostgresAgentSourceWithoutDatabase(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Database.AgentSource = config.AgentSourcePostgres
	_, err := app.New(context.Background(), cfg, testProviders(), app.WithCallStore(&storemock.Store{}))
	if err == nil {
		t.Fatal("expected error for postgres agent source without a connection")
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	a, policy := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	get := func(path string) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := get("/healthz"); got != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", got)
	}
	if got := get("/readyz"); got != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", got)
	}
	if got := get("/metrics"); got != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", got)
	}

	policy.ReportCriticalError(context.Background(), "test", "c1", "browser")
	if got := get("/readyz"); got != http.StatusServiceUnavailable {
		t.Errorf("/readyz with stop active = %d, want 503", got)
	}

	resp, err := http.Post(srv.URL+"/admin/reset-global-stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status       string `json:"status"`
		CallsAllowed bool   `json:"calls_allowed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || !body.CallsAllowed {
		t.Errorf("reset response = %+v, want ok/true", body)
	}
	if got := get("/readyz"); got != http.StatusOK {
		t.Errorf("/readyz after reset = %d, want 200", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in).String(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
