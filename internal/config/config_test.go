// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"

sync:
  load_timeout: "10s"
  mutation_timeout: "2s"
  resubscribe_initial: "100ms"
  resubscribe_max: "5s"
  echo_suppressed: true
  reload_on_reconnect: false
  queue_size: 64
  dedupe_ttl: "1m"
  dedupe_size: 500

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  addr: ":9464"
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Sync.LoadTimeout != 10*time.Second {
		t.Errorf("Sync.LoadTimeout = %v, want %v", cfg.Sync.LoadTimeout, 10*time.Second)
	}
	if cfg.Sync.MutationTimeout != 2*time.Second {
		t.Errorf("Sync.MutationTimeout = %v, want %v", cfg.Sync.MutationTimeout, 2*time.Second)
	}
	if cfg.Sync.ResubscribeInitial != 100*time.Millisecond {
		t.Errorf("Sync.ResubscribeInitial = %v, want %v", cfg.Sync.ResubscribeInitial, 100*time.Millisecond)
	}
	if cfg.Sync.DedupeTTL != time.Minute {
		t.Errorf("Sync.DedupeTTL = %v, want %v", cfg.Sync.DedupeTTL, time.Minute)
	}
	if !cfg.Sync.EchoSuppressed {
		t.Error("Sync.EchoSuppressed = false, want true")
	}
	if cfg.Sync.ReloadOnReconnect {
		t.Error("Sync.ReloadOnReconnect = true, want false")
	}
	if cfg.Sync.QueueSize != 64 {
		t.Errorf("Sync.QueueSize = %d, want 64", cfg.Sync.QueueSize)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9464" {
		t.Errorf("Metrics = %+v, want enabled on :9464", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[database]
path = "./toml.db"

[sync]
load_timeout = "45s"
echo_suppressed = true

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "./toml.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./toml.db")
	}
	if cfg.Sync.LoadTimeout != 45*time.Second {
		t.Errorf("Sync.LoadTimeout = %v, want %v", cfg.Sync.LoadTimeout, 45*time.Second)
	}
	if !cfg.Sync.EchoSuppressed {
		t.Error("Sync.EchoSuppressed = false, want true")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	// Untouched keys keep defaults
	if cfg.Sync.MutationTimeout != 15*time.Second {
		t.Errorf("Sync.MutationTimeout = %v, want default %v", cfg.Sync.MutationTimeout, 15*time.Second)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_PARA_SECRET", "env-secret-env-secret-env-secret!")
	t.Setenv("TEST_PARA_DB", "/tmp/from-env.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_PARA_DB}"
auth:
  jwt_secret: "${TEST_PARA_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/from-env.db")
	}
	if cfg.Auth.JWTSecret != "env-secret-env-secret-env-secret!" {
		t.Errorf("Auth.JWTSecret = %q, want env value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_UnsetEnvVar(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_PARA_DEFINITELY_UNSET}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error = %v, want mention of database.path", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error = %v", err)
	}
	if cfg.Sync.LoadTimeout != 30*time.Second {
		t.Errorf("Sync.LoadTimeout = %v, want 30s", cfg.Sync.LoadTimeout)
	}
	if !cfg.Sync.ReloadOnReconnect {
		t.Error("Sync.ReloadOnReconnect = false, want true")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"invalid duration", "c.yaml", "sync:\n  load_timeout: \"soon\"\n", "load_timeout"},
		{"short secret", "c.yaml", "auth:\n  jwt_secret: \"short\"\n", "jwt_secret"},
		{"bad level", "c.yaml", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "c.yaml", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"backoff inverted", "c.yaml", "sync:\n  resubscribe_initial: \"1m\"\n  resubscribe_max: \"1s\"\n", "resubscribe_max"},
		{"zero queue", "c.yaml", "sync:\n  queue_size: -1\n", "queue_size"},
		{"metrics without addr", "c.yaml", "metrics:\n  enabled: true\n  addr: \"\"\n", "metrics.addr"},
		{"invalid yaml", "c.yaml", "sync: [unclosed", "parsing config file"},
		{"invalid toml", "c.toml", "[sync\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
