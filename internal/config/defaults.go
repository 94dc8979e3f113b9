package config

import (
	"maps"
	"os"
	"path/filepath"
)

const (
	DefaultPort           = 9000
	DefaultAdminPort      = 9001
	DefaultRegistryURL    = "https://registry.npmjs.org"
	DefaultBuildTimeout   = "5m"
	DefaultInstallCommand = "npm install --omit=dev --no-audit --no-fund --no-package-lock"
	DefaultMetricsPath    = "/metrics"
	DefaultSubjectPrefix  = "packd.builds"
	DefaultStream         = "PACKD_BUILDS"
)

// DefaultResponseHeaders are attached to every successful bundle response.
// Bundles are immutable for a given set of resolved versions, so they are
// cacheable for a year.
func DefaultResponseHeaders() map[string]string {
	return map[string]string{
		"Cache-Control":                 "public, max-age=31536000",
		"X-Content-Type-Options":        "nosniff",
		"Access-Control-Allow-Origin":   "*",
		"Access-Control-Request-Method": "GET",
		"Strict-Transport-Security":     "max-age=31536000; includeSubDomains; preload",
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.AdminPort == 0 {
		s.AdminPort = DefaultAdminPort
	}
	if s.ReadTimeout == "" {
		s.ReadTimeout = "30s"
	}
	// Cold builds can take minutes; the write timeout has to outlive them.
	if s.WriteTimeout == "" {
		s.WriteTimeout = "10m"
	}
	if s.ShutdownTimeout == "" {
		s.ShutdownTimeout = "30s"
	}

	r := &cfg.Registry
	if r.URL == "" {
		r.URL = DefaultRegistryURL
	}
	if r.Timeout == "" {
		r.Timeout = "30s"
	}
	if r.Concurrency <= 0 {
		r.Concurrency = 4
	}
	if r.Retry.Backoff == "" {
		r.Retry.Backoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(r.Retry.Backoff)); m != "" {
		r.Retry.Backoff = m
	}
	if r.Retry.InitialDelay == "" {
		r.Retry.InitialDelay = "250ms"
	}
	if r.Retry.MaxDelay == "" {
		r.Retry.MaxDelay = "5s"
	}
	// Negative disables retries.
	if r.Retry.MaxRetries == 0 {
		r.Retry.MaxRetries = 2
	}

	b := &cfg.Build
	if b.TmpDir == "" {
		b.TmpDir = filepath.Join(os.TempDir(), "packd")
	}
	if b.Timeout == "" {
		b.Timeout = DefaultBuildTimeout
	}
	if b.InstallCommand == "" {
		b.InstallCommand = DefaultInstallCommand
	}
	if b.InstallEnv == nil {
		b.InstallEnv = []string{"npm_config_cache=${HOME}/.npm", "npm_config_update_notifier=false"}
	}

	if cfg.Response.Headers == nil {
		cfg.Response.Headers = DefaultResponseHeaders()
	} else {
		merged := DefaultResponseHeaders()
		maps.Copy(merged, cfg.Response.Headers)
		// An empty value removes a default header.
		maps.DeleteFunc(merged, func(_, v string) bool { return v == "" })
		cfg.Response.Headers = merged
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = DefaultStream
	}

	if cfg.Ledger.Recent <= 0 {
		cfg.Ledger.Recent = 50
	}

	if cfg.Maintenance.Interval == "" {
		cfg.Maintenance.Interval = "10m"
	}
}
