package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/gateway"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, LogFormatConsole, cfg.Server.LogFormat)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, 120, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "engageflow-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, 80, cfg.Engine.MaxSteps)
	require.Equal(t, 5*time.Second, cfg.Engine.HTTPTimeout)
	require.Equal(t, 15*time.Minute, cfg.Engine.Inactivity.Timeout)
	require.Equal(t, 2, cfg.Engine.Inactivity.MaxWarnings)
	require.Equal(t, "@every 10s", cfg.Engine.SweepSchedule)
	require.Equal(t, "@every 15s", cfg.Engine.ResumeSchedule)
	require.Equal(t, 7, cfg.Engine.LogRetentionDays)

	require.Equal(t, "http", cfg.Gateway.Driver)
	require.Equal(t, 2.5, cfg.Gateway.RatePerSecond)
	require.Equal(t, 4, cfg.Gateway.Burst)

	require.Equal(t, 3, cfg.Email.MaxAttempts)
	require.Equal(t, 2*time.Minute, cfg.Email.RetryDelay)
	require.Equal(t, 50, cfg.Email.BatchSize)
	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, LogFormatJSON, cfg.Server.LogFormat)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/engageflow.sqlite", cfg.Database.Path)
	require.Equal(t, 50, cfg.Engine.MaxSteps)
	require.Equal(t, "log", cfg.Gateway.Driver)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.Equal(t, 5*time.Second, cfg.Monitoring.Health.ProbeTimeout)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("ENGAGEFLOW_SERVER_PORT", "7070")
	t.Setenv("ENGAGEFLOW_ENGINE_MAX_STEPS", "12")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 12, cfg.Engine.MaxSteps)
}

func TestLoadConfigRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("ENGAGEFLOW_ENGINE_MAX_STEPS", "0")
	t.Setenv("ENGAGEFLOW_ENGINE_SWEEP_SCHEDULE", "every so often")

	_, err := LoadConfig(t.TempDir())
	require.ErrorContains(t, err, "engine.max_steps must be at least 1")
	require.ErrorContains(t, err, "engine.sweep_schedule")
}

func TestConfigValidate(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	cfg.Server.LogFormat = "xml"
	cfg.Database.Driver = "oracle"
	cfg.Gateway = GatewayConfig{Driver: "http"}
	cfg.Email.BatchSize = 0

	err = cfg.Validate()
	require.Len(t, multierr.Errors(err), 5)
	require.ErrorContains(t, err, "server.port 0 out of range")
	require.ErrorContains(t, err, `log format "xml"`)
	require.ErrorContains(t, err, `database.driver "oracle" is not supported`)
	require.ErrorContains(t, err, "gateway.base_url is required")
	require.ErrorContains(t, err, "email.batch_size must be at least 1")
}

func TestAuthConfigAdapter(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret", Issuer: "issuer", TTL: 30 * time.Minute}}
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, "engageflow", empty.JWTServiceConfig().Issuer)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.Equal(t, 10*time.Second, settings.Timeout)

	fallback := EmailConfig{SMTP: SMTPConfig{Enabled: true, Host: " smtp.example.com ", Username: "bot@example.com"}}.SMTPSettings()
	require.Equal(t, "smtp.example.com", fallback.Host)
	require.Equal(t, "bot@example.com", fallback.From)
	require.Equal(t, defaultSMTPTimeout, fallback.Timeout)

	require.False(t, EmailConfig{SMTP: SMTPConfig{Enabled: true}}.SMTPSettings().Enabled)
}

func TestEngineInactivityDefaults(t *testing.T) {
	cfg := EngineConfig{Inactivity: InactivityConfig{
		Timeout:        90 * time.Second,
		MaxWarnings:    2,
		WarningMessage: "  Still there?  ",
	}}

	settings := cfg.InactivityDefaults()
	require.Equal(t, 90, settings.Timeout)
	require.Equal(t, 2, settings.MaxWarnings)
	require.Equal(t, "Still there?", settings.WarningMessage)
	require.Len(t, cfg.EngineOptions(), 3)
}

func TestGatewayNewSender(t *testing.T) {
	sender, err := GatewayConfig{Driver: "log"}.NewSender()
	require.NoError(t, err)
	require.IsType(t, &gateway.LogSender{}, sender)

	sender, err = GatewayConfig{Driver: "http", BaseURL: "https://wa.example.com", RatePerSecond: 2, Burst: 2}.NewSender()
	require.NoError(t, err)
	require.IsType(t, &gateway.ThrottledSender{}, sender)

	_, err = GatewayConfig{Driver: "http"}.NewSender()
	require.ErrorContains(t, err, "base url is required")

	_, err = GatewayConfig{Driver: "carrier-pigeon"}.NewSender()
	require.ErrorContains(t, err, "unsupported gateway driver")
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: " PostgreSQL ",
		Postgres: DBAuthConfig{
			Host:     "db.internal",
			Port:     5433,
			Database: "engageflow",
			Username: "bot",
			Password: " secret ",
		},
	}

	dbCfg := cfg.ConnectionConfig()
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "engageflow", dbCfg.Name)
	require.Equal(t, "bot", dbCfg.User)
	require.Equal(t, "secret", dbCfg.Password)

	cfg = DatabaseConfig{Driver: "mysql", MySQL: DBAuthConfig{Host: "mysql.internal", Port: 3306}}
	require.Equal(t, "mysql.internal", cfg.ConnectionConfig().Host)

	cfg = DatabaseConfig{Path: "./data/test.sqlite"}
	dbCfg = cfg.ConnectionConfig()
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/test.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)
}
