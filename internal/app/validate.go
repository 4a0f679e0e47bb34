package app

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
)

// Validate reports every invalid setting at once. Secrets are not checked
// here because missing ones are generated at startup.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if _, err := loggingOptions(c.Server.LogLevel, c.Server.LogFormat); err != nil {
		add("server: %w", err)
	}
	if c.Server.RateLimit.Requests < 0 {
		add("server.rate_limit.requests must not be negative")
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window <= 0 {
		add("server.rate_limit.window must be positive")
	}

	switch driver := c.Database.ConnectionConfig().Driver; driver {
	case "sqlite", "postgres", "mysql":
	default:
		add("database.driver %q is not supported", driver)
	}

	if c.Monitoring.Health.ProbeTimeout < 0 {
		add("monitoring.health_check.probe_timeout must not be negative")
	}
	if c.Auth.JWT.TTL < 0 {
		add("auth.jwt.access_token_ttl must not be negative")
	}

	if c.Engine.MaxSteps < 1 {
		add("engine.max_steps must be at least 1")
	}
	if c.Engine.LogRetentionDays < 0 {
		add("engine.log_retention_days must not be negative")
	}
	if c.Engine.Inactivity.Timeout < 0 || c.Engine.Inactivity.MaxWarnings < 0 {
		add("engine.inactivity values must not be negative")
	}
	for key, spec := range map[string]string{
		"sweep_schedule":     c.Engine.SweepSchedule,
		"resume_schedule":    c.Engine.ResumeSchedule,
		"email_schedule":     c.Engine.EmailSchedule,
		"retention_schedule": c.Engine.RetentionSchedule,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			add("engine.%s %q: %w", key, spec, err)
		}
	}

	switch driver := strings.ToLower(strings.TrimSpace(c.Gateway.Driver)); driver {
	case "", GatewayDriverLog:
	case GatewayDriverHTTP:
		if strings.TrimSpace(c.Gateway.BaseURL) == "" {
			add("gateway.base_url is required for the http driver")
		}
	default:
		add("gateway.driver %q is not supported", c.Gateway.Driver)
	}
	if c.Gateway.RatePerSecond < 0 || c.Gateway.Burst < 0 {
		add("gateway rate limits must not be negative")
	}

	if c.Email.MaxAttempts < 1 {
		add("email.max_attempts must be at least 1")
	}
	if c.Email.BatchSize < 1 {
		add("email.batch_size must be at least 1")
	}

	return errs
}
