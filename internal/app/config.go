package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the EngageFlow backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Email      EmailConfig      `mapstructure:"email"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int        `mapstructure:"port"`
	LogLevel    string     `mapstructure:"log_level"`
	LogFormat   string     `mapstructure:"log_format"`
	CORSOrigins []string   `mapstructure:"cors_origins"`
	RateLimit   RateConfig `mapstructure:"rate_limit"`
}

// RateConfig bounds API requests per client within a window.
type RateConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VaultConfig holds the master key that seals node secrets.
type VaultConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints and bounds each probe.
type HealthConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// EngineConfig tunes the flow interpreter and its background jobs.
type EngineConfig struct {
	MaxSteps          int              `mapstructure:"max_steps"`
	HTTPTimeout       time.Duration    `mapstructure:"http_timeout"`
	GraphCacheTTL     time.Duration    `mapstructure:"graph_cache_ttl"`
	Inactivity        InactivityConfig `mapstructure:"inactivity"`
	SweepSchedule     string           `mapstructure:"sweep_schedule"`
	ResumeSchedule    string           `mapstructure:"resume_schedule"`
	EmailSchedule     string           `mapstructure:"email_schedule"`
	RetentionSchedule string           `mapstructure:"retention_schedule"`
	LogRetentionDays  int              `mapstructure:"log_retention_days"`
}

// InactivityConfig is the company-wide fallback when a flow sets no timeout.
type InactivityConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxWarnings    int           `mapstructure:"max_warnings"`
	WarningMessage string        `mapstructure:"warning_message"`
	EndMessage     string        `mapstructure:"end_message"`
}

// GatewayConfig selects how outbound WhatsApp messages are delivered.
type GatewayConfig struct {
	Driver        string        `mapstructure:"driver"`
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP        SMTPConfig    `mapstructure:"smtp"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	BatchSize   int           `mapstructure:"batch_size"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads config.yaml from ./config and paths, overlays ENGAGEFLOW_*
// environment variables and validates the result.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ENGAGEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", LogFormatJSON)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests", 300)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/engageflow.sqlite")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.probe_timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "engageflow")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")

	v.SetDefault("engine.max_steps", 50)
	v.SetDefault("engine.http_timeout", "10s")
	v.SetDefault("engine.graph_cache_ttl", "10m")
	v.SetDefault("engine.inactivity.timeout", "0s")
	v.SetDefault("engine.inactivity.max_warnings", 1)
	v.SetDefault("engine.sweep_schedule", "@every 30s")
	v.SetDefault("engine.resume_schedule", "@every 15s")
	v.SetDefault("engine.email_schedule", "@every 1m")
	v.SetDefault("engine.retention_schedule", "@daily")
	v.SetDefault("engine.log_retention_days", 30)

	v.SetDefault("gateway.driver", "log")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.rate_per_second", 5)
	v.SetDefault("gateway.burst", 10)

	v.SetDefault("email.max_attempts", 5)
	v.SetDefault("email.retry_delay", "1m")
	v.SetDefault("email.batch_size", 50)
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
