package config

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/scholar/internal/models"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	return writeNamed(t, t.TempDir(), "scholar.yaml", contents)
}

func writeNamed(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ``))
	if err != nil {
		t.Fatalf("expected empty config to load, got %v", err)
	}
	if cfg.Orchestrator.AttemptTimeout != 30*time.Second || cfg.Orchestrator.RequestDeadline != 90*time.Second {
		t.Fatalf("unexpected orchestrator defaults %+v", cfg.Orchestrator)
	}
	if cfg.Ledger.Driver != "memory" || cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected defaults ledger=%q address=%q", cfg.Ledger.Driver, cfg.Server.Address)
	}
	if !cfg.Classifier.RemoteEnabled() || cfg.Classifier.Model != models.ModelGeminiFlashLite {
		t.Fatalf("unexpected classifier defaults %+v", cfg.Classifier)
	}
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("SCHOLAR_TEST_GROQ_KEY", "gsk-from-env")
	path := writeConfig(t, `
version: 1
logging:
  level: debug
  format: text
providers:
  groq:
    api_key: ${SCHOLAR_TEST_GROQ_KEY}
  openrouter:
    base_url: https://proxy.example.com/v1
orchestrator:
  attempt_timeout: 10s
  request_deadline: 45s
classifier:
  remote: false
models:
  - id: local-llama
    name: Local Llama
    family: generic_chat
    provider: ollama
    context_window: 8192
    cost_tier: free
preferences:
  default_model: gemini-2.5-pro
  task_overrides:
    creative: local-llama
  style:
    concise: true
ledger:
  driver: sqlite
  dsn: file:outcomes.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Orchestrator.AttemptTimeout != 10*time.Second {
		t.Fatalf("attempt_timeout = %s", cfg.Orchestrator.AttemptTimeout)
	}
	if cfg.Classifier.RemoteEnabled() {
		t.Fatal("remote classification should be disabled")
	}
	if key, ok := cfg.Credentials().Lookup("groq"); !ok || key != "gsk-from-env" {
		t.Fatalf("groq credential = %q, %v", key, ok)
	}
	if got := cfg.GenericConfig().Endpoints["openrouter"]; got != "https://proxy.example.com/v1" {
		t.Fatalf("openrouter endpoint = %q", got)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if _, ok := reg.Get("local-llama"); !ok {
		t.Fatal("configured model missing from registry")
	}
	if got, _ := cfg.Preferences.Override(models.TaskCreative); got != "local-llama" {
		t.Fatalf("creative override = %q", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9000"
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "log level",
			config:  "logging:\n  level: loud",
			wantErr: "logging.level",
		},
		{
			name:    "attempt exceeds deadline",
			config:  "orchestrator:\n  attempt_timeout: 2m\n  request_deadline: 1m",
			wantErr: "orchestrator.attempt_timeout",
		},
		{
			name:    "sql ledger without dsn",
			config:  "ledger:\n  driver: postgres",
			wantErr: "ledger.dsn",
		},
		{
			name:    "unknown ledger driver",
			config:  "ledger:\n  driver: mongo\n  dsn: x",
			wantErr: "ledger.driver",
		},
		{
			name:    "chain ends in generic model",
			config:  "chains:\n  tasks:\n    chat: [meta-llama/llama-3.3-70b-instruct:free]",
			wantErr: "chains",
		},
		{
			name:    "unknown override model",
			config:  "preferences:\n  task_overrides:\n    math: gpt-9",
			wantErr: "preferences.task_overrides.math",
		},
		{
			name:    "tracing without endpoint",
			config:  "observability:\n  tracing:\n    enabled: true",
			wantErr: "observability.tracing.endpoint",
		},
		{
			name:    "negative rate limit",
			config:  "server:\n  rate_limit:\n    enabled: true\n    burst_size: -1",
			wantErr: "server.rate_limit",
		},
		{
			name:    "newer version",
			config:  "version: 7",
			wantErr: "newer than this build",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %s error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadIncludesAndJSON5(t *testing.T) {
	dir := t.TempDir()
	writeNamed(t, dir, "base.yaml", `
logging:
  level: warn
server:
  address: ":7000"
`)
	path := writeNamed(t, dir, "scholar.json5", `{
  // comments are allowed
  $include: "base.yaml",
  server: { address: ":7001" },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("included level = %q", cfg.Logging.Level)
	}
	if cfg.Server.Address != ":7001" {
		t.Fatalf("address = %q, want the including file to win", cfg.Server.Address)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeNamed(t, dir, "a.yaml", `$include: b.yaml`)
	writeNamed(t, dir, "b.yaml", `$include: a.yaml`)

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestChainConfigMergesOverrides(t *testing.T) {
	cfg := Default()
	cfg.Chains.Tasks = map[models.TaskCategory][]string{models.TaskCoding: {models.ModelGeminiPro}}
	cfg.Chains.TerminalModel = models.ModelGeminiPro

	chains := cfg.ChainConfig()
	if got := chains.Chains[models.TaskCoding]; len(got) != 1 || got[0] != models.ModelGeminiPro {
		t.Fatalf("coding chain = %v", got)
	}
	if len(chains.Chains[models.TaskChat]) == 0 {
		t.Fatal("unset tasks keep their defaults")
	}
	if chains.TerminalModel != models.ModelGeminiPro || chains.LatencyModel == "" {
		t.Fatalf("safety nets = %+v", chains)
	}
	if len(models.DefaultChainConfig().Chains[models.TaskCoding]) == 1 {
		t.Fatal("defaults must not be modified")
	}
}

func TestTraceConfigDisabled(t *testing.T) {
	cfg := Default()
	cfg.Observability.Tracing.Endpoint = "collector:4317"
	if got := cfg.TraceConfig().Endpoint; got != "" {
		t.Fatalf("disabled tracing endpoint = %q", got)
	}
	cfg.Observability.Tracing.Enabled = true
	if got := cfg.TraceConfig().Endpoint; got != "collector:4317" {
		t.Fatalf("enabled tracing endpoint = %q", got)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, _ := schema["properties"].(map[string]any)
	for _, key := range []string{"orchestrator", "ledger", "preferences"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, `
preferences:
  default_model: gemini-2.5-flash
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	live := NewLive(cfg)

	reloaded := make(chan *Config, 4)
	w, err := Watch(context.Background(), path, live, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce(20*time.Millisecond),
		OnReload(func(c *Config) { reloaded <- c }),
	)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("preferences:\n  default_model: gemini-2.5-pro\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	if got := live.Preferences().DefaultModel; got != models.ModelGeminiPro {
		t.Fatalf("default model = %q after reload", got)
	}

	// An invalid edit keeps the previous config.
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := live.Preferences().DefaultModel; got != models.ModelGeminiPro {
		t.Fatalf("invalid config replaced the live one: %q", got)
	}
}
