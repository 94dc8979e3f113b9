package config

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// Config is the complete packd configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Registry    RegistryConfig    `yaml:"registry"`
	Build       BuildConfig       `yaml:"build"`
	Cache       CacheConfig       `yaml:"cache"`
	Response    ResponseConfig    `yaml:"response"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Events      EventsConfig      `yaml:"events"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	AdminPort       int    `yaml:"admin_port"`
	MaxConnections  int    `yaml:"max_connections"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// RegistryConfig describes the npm registry packd resolves against.
type RegistryConfig struct {
	URL         string      `yaml:"url"`
	Timeout     string      `yaml:"timeout"`
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig holds backoff settings for transient registry failures.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxRetries   int              `yaml:"max_retries"`
}

// BuildConfig controls how bundles are produced.
type BuildConfig struct {
	TmpDir         string   `yaml:"tmp_dir"`
	Timeout        string   `yaml:"timeout"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	InstallCommand string   `yaml:"install_command"`
	InstallEnv     []string `yaml:"install_env"`
	// WorkerCommand overrides the executable used for isolated builds.
	// Empty means re-executing the running binary with "worker".
	WorkerCommand []string `yaml:"worker_command,omitempty"`
}

// CacheConfig controls the artifact cache tiers.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	Dir        string `yaml:"dir"`
	MaxAge     string `yaml:"max_age"`
}

// ResponseConfig holds static headers attached to every successful bundle.
type ResponseConfig struct {
	Headers map[string]string `yaml:"headers"`
}

type MetricsConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig enables build lifecycle publishing to NATS JetStream when NATSURL is set.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Stream        string `yaml:"stream"`
}

// LedgerConfig enables the sqlite build history when Path is set.
type LedgerConfig struct {
	Path   string `yaml:"path"`
	Recent int    `yaml:"recent"`
}

type MaintenanceConfig struct {
	Interval string `yaml:"interval"`
}

// Load reads the configuration from configPath, expanding environment
// variables and applying defaults. The result is validated.
func Load(configPath string) (*Config, error) {
	_ = loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the validated defaults when
// configPath is empty or does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		_ = loadEnvFile()
		return finish(Default())
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		_ = loadEnvFile()
		return finish(Default())
	}
	return Load(configPath)
}

// Parse decodes YAML configuration data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stdErrors.Is(err, io.EOF) {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Default()
	example.Ledger.Path = "./packd-builds.db"
	example.Cache.Dir = "./packd-cache"
	example.Cache.MaxAge = "720h"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// loadEnvFile loads the first of .env and .env.local that exists. Variables
// already present in the environment win.
func loadEnvFile() error {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		return godotenv.Load(envPath)
	}
	return fmt.Errorf("no .env file found")
}

// ReadTimeoutDuration returns the parsed read timeout.
func (s ServerConfig) ReadTimeoutDuration() time.Duration { return mustDuration(s.ReadTimeout) }

// WriteTimeoutDuration returns the parsed write timeout.
func (s ServerConfig) WriteTimeoutDuration() time.Duration { return mustDuration(s.WriteTimeout) }

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(s.ShutdownTimeout)
}

func (r RegistryConfig) TimeoutDuration() time.Duration { return mustDuration(r.Timeout) }

func (r RetryConfig) InitialDelayDuration() time.Duration { return mustDuration(r.InitialDelay) }

func (r RetryConfig) MaxDelayDuration() time.Duration { return mustDuration(r.MaxDelay) }

// TimeoutDuration returns the per-build deadline.
func (b BuildConfig) TimeoutDuration() time.Duration { return mustDuration(b.Timeout) }

// MaxAgeDuration returns the disk cache retention; zero keeps entries forever.
func (c CacheConfig) MaxAgeDuration() time.Duration { return mustDuration(c.MaxAge) }

func (m MaintenanceConfig) IntervalDuration() time.Duration { return mustDuration(m.Interval) }

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
