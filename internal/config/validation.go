package config

import (
	"net/url"
	"strings"
	"time"

	"mvdan.cc/sh/v3/shell"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// Validate checks the configuration and returns a config-category error
// describing the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateRegistry,
		c.validateBuild,
		c.validateCache,
		c.validateMisc,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field, reason string, value any) error {
	return errors.ConfigError("invalid configuration: "+field+" "+reason).
		WithContext("field", field).
		WithContext("value", value).
		Build()
}

func validateDuration(field, raw string, allowZero bool) error {
	if raw == "" && allowZero {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return invalid(field, "is not a valid duration", raw)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return invalid(field, "must be positive", raw)
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return invalid(field, "must be between 0 and 65535", port)
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if err := validatePort("server.port", s.Port); err != nil {
		return err
	}
	if err := validatePort("server.admin_port", s.AdminPort); err != nil {
		return err
	}
	if s.Port != 0 && s.Port == s.AdminPort {
		return invalid("server.admin_port", "must differ from server.port", s.AdminPort)
	}
	if s.MaxConnections < 0 {
		return invalid("server.max_connections", "cannot be negative", s.MaxConnections)
	}
	if err := validateDuration("server.read_timeout", s.ReadTimeout, false); err != nil {
		return err
	}
	if err := validateDuration("server.write_timeout", s.WriteTimeout, false); err != nil {
		return err
	}
	return validateDuration("server.shutdown_timeout", s.ShutdownTimeout, false)
}

func (c *Config) validateRegistry() error {
	r := c.Registry
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("registry.url", "must be an absolute http(s) URL", r.URL)
	}
	if err := validateDuration("registry.timeout", r.Timeout, false); err != nil {
		return err
	}
	if NormalizeRetryBackoff(string(r.Retry.Backoff)) == "" {
		return invalid("registry.retry.backoff", "must be fixed, linear or exponential", r.Retry.Backoff)
	}
	if err := validateDuration("registry.retry.initial_delay", r.Retry.InitialDelay, false); err != nil {
		return err
	}
	return validateDuration("registry.retry.max_delay", r.Retry.MaxDelay, false)
}

func (c *Config) validateBuild() error {
	b := c.Build
	if strings.TrimSpace(b.TmpDir) == "" {
		return invalid("build.tmp_dir", "is required", b.TmpDir)
	}
	if err := validateDuration("build.timeout", b.Timeout, false); err != nil {
		return err
	}
	if b.MaxConcurrent < 0 {
		return invalid("build.max_concurrent", "cannot be negative", b.MaxConcurrent)
	}
	fields, err := shell.Fields(b.InstallCommand, func(string) string { return "" })
	if err != nil {
		return invalid("build.install_command", "cannot be parsed", b.InstallCommand)
	}
	if len(fields) == 0 {
		return invalid("build.install_command", "is required", b.InstallCommand)
	}
	for _, kv := range b.InstallEnv {
		if !strings.Contains(kv, "=") {
			return invalid("build.install_env", "entries must be KEY=VALUE", kv)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxEntries < 0 {
		return invalid("cache.max_entries", "cannot be negative", c.Cache.MaxEntries)
	}
	return validateDuration("cache.max_age", c.Cache.MaxAge, true)
}

func (c *Config) validateMisc() error {
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with /", c.Metrics.Path)
	}
	if c.Events.NATSURL != "" && strings.ContainsAny(c.Events.SubjectPrefix, " *>") {
		return invalid("events.subject_prefix", "must be a literal subject", c.Events.SubjectPrefix)
	}
	return validateDuration("maintenance.interval", c.Maintenance.Interval, false)
}
