// Package config loads and validates the StayOps backend configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is a singleton validator instance
var validate = validator.New()

// Config is the full backend configuration, loaded from YAML.
type Config struct {
	DataDir  string       `yaml:"data_dir" validate:"required"`
	LogLevel string       `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	HTTP     HTTPConfig   `yaml:"http"`
	Remote   RemoteConfig `yaml:"remote"`
	Sync     SyncConfig   `yaml:"sync"`
}

// HTTPConfig configures the admin/API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// RemoteConfig configures the remote system-of-record connection.
type RemoteConfig struct {
	// DSN is a pgx-compatible connection string. Empty means the backend
	// starts offline-only and syncs once a DSN is configured.
	DSN string `yaml:"dsn"`

	// ProbeAddr is a host:port dialed to check transport-level reachability
	// without a remote round trip.
	ProbeAddr string `yaml:"probe_addr" validate:"required,hostname_port"`

	// ProbeTimeout bounds a single remote reachability check.
	ProbeTimeout time.Duration `yaml:"probe_timeout" validate:"required"`
}

// SyncConfig configures the reconciliation engine.
type SyncConfig struct {
	// CheckCacheWindow is the minimum interval between real remote checks;
	// checks inside the window return the cached result.
	CheckCacheWindow time.Duration `yaml:"check_cache_window" validate:"required"`

	// PollInterval is how often the background poller re-checks reachability.
	PollInterval time.Duration `yaml:"poll_interval" validate:"required"`

	// RetryLimit is the per-change retry ceiling before a change record is
	// marked failed permanently.
	RetryLimit int `yaml:"retry_limit" validate:"required,min=1"`

	// PeriodicInterval is how often a full reconciliation pass runs on its
	// own, independent of restoration events. Zero disables the loop.
	PeriodicInterval time.Duration `yaml:"periodic_interval"`
}

// Default returns the configuration defaults applied before YAML decoding.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8090",
		},
		Remote: RemoteConfig{
			ProbeAddr:    "1.1.1.1:443",
			ProbeTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			CheckCacheWindow: 10 * time.Second,
			PollInterval:     15 * time.Second,
			RetryLimit:       5,
			PeriodicInterval: 15 * time.Minute,
		},
	}
}

// Load reads a YAML config file, applies defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
