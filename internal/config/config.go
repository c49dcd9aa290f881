// ABOUTME: Configuration loading and parsing for para-sync
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete para-sync configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// DatabaseConfig holds remote store configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// SyncConfig holds timing and behaviour of the sync layer
type SyncConfig struct {
	LoadTimeout        time.Duration `yaml:"-" toml:"-"`
	MutationTimeout    time.Duration `yaml:"-" toml:"-"`
	ResubscribeInitial time.Duration `yaml:"-" toml:"-"`
	ResubscribeMax     time.Duration `yaml:"-" toml:"-"`
	DedupeTTL          time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	LoadTimeoutRaw        string `yaml:"load_timeout" toml:"load_timeout"`
	MutationTimeoutRaw    string `yaml:"mutation_timeout" toml:"mutation_timeout"`
	ResubscribeInitialRaw string `yaml:"resubscribe_initial" toml:"resubscribe_initial"`
	ResubscribeMaxRaw     string `yaml:"resubscribe_max" toml:"resubscribe_max"`
	DedupeTTLRaw          string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`

	EchoSuppressed    bool `yaml:"echo_suppressed" toml:"echo_suppressed"`
	ReloadOnReconnect bool `yaml:"reload_on_reconnect" toml:"reload_on_reconnect"`
	QueueSize         int  `yaml:"queue_size" toml:"queue_size"`
	DedupeSize        int  `yaml:"dedupe_size" toml:"dedupe_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Defaults returns a configuration usable without a file.
func Defaults() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Path: "./para.db"},
		Sync: SyncConfig{
			LoadTimeoutRaw:        "30s",
			MutationTimeoutRaw:    "15s",
			ResubscribeInitialRaw: "250ms",
			ResubscribeMaxRaw:     "30s",
			DedupeTTLRaw:          "5m",
			ReloadOnReconnect:     true,
			QueueSize:             256,
			DedupeSize:            10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464", Path: "/metrics"},
	}
	if err := parseDurations(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep the values from Defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Sync.LoadTimeout <= 0 {
		return fmt.Errorf("sync.load_timeout must be positive")
	}
	if c.Sync.MutationTimeout <= 0 {
		return fmt.Errorf("sync.mutation_timeout must be positive")
	}
	if c.Sync.ResubscribeMax < c.Sync.ResubscribeInitial {
		return fmt.Errorf("sync.resubscribe_max must not be less than sync.resubscribe_initial")
	}
	if c.Sync.QueueSize < 1 {
		return fmt.Errorf("sync.queue_size must be at least 1")
	}
	if c.Sync.DedupeSize < 1 {
		return fmt.Errorf("sync.dedupe_size must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"load_timeout", cfg.Sync.LoadTimeoutRaw, &cfg.Sync.LoadTimeout},
		{"mutation_timeout", cfg.Sync.MutationTimeoutRaw, &cfg.Sync.MutationTimeout},
		{"resubscribe_initial", cfg.Sync.ResubscribeInitialRaw, &cfg.Sync.ResubscribeInitial},
		{"resubscribe_max", cfg.Sync.ResubscribeMaxRaw, &cfg.Sync.ResubscribeMax},
		{"dedupe_ttl", cfg.Sync.DedupeTTLRaw, &cfg.Sync.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
