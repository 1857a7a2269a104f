package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the LockGate backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
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

// VaultConfig holds the key protecting TOTP secrets and network passwords at rest.
type VaultConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Session   SessionSettings   `mapstructure:"session"`
	TwoFactor TwoFactorSettings `mapstructure:"two_factor"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// TwoFactorSettings configures TOTP enrolment and login challenges.
type TwoFactorSettings struct {
	Issuer       string        `mapstructure:"issuer"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	Skew         uint          `mapstructure:"skew"`
	QRCodeSize   int           `mapstructure:"qr_code_size"`
}

// RateLimitConfig bounds request rates.
type RateLimitConfig struct {
	Store       string        `mapstructure:"store"`
	Global      RateLimitRule `mapstructure:"global"`
	ValidatePin RateLimitRule `mapstructure:"validate_pin"`
	Login       RateLimitRule `mapstructure:"login"`
}

// RateLimitRule allows Requests per Window. Zero requests disables the rule.
type RateLimitRule struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MQTTConfig configures the access event publisher.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// MaintenanceConfig schedules background cleanup jobs using cron specs.
type MaintenanceConfig struct {
	PinSweep               string `mapstructure:"pin_sweep"`
	ChallengePurge         string `mapstructure:"challenge_purge"`
	SessionCleanup         string `mapstructure:"session_cleanup"`
	CachePurge             string `mapstructure:"cache_purge"`
	AccessLogRetention     string `mapstructure:"access_log_retention"`
	AccessLogRetentionDays int    `mapstructure:"access_log_retention_days"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("LOCKGATE")
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

	return &config, nil
}

// every key needs a default so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/lockgate.sqlite")
	v.SetDefault("database.dsn", "")
	for _, vendor := range []string{"postgres", "mysql"} {
		v.SetDefault("database."+vendor+".enabled", false)
		v.SetDefault("database."+vendor+".host", "")
		v.SetDefault("database."+vendor+".port", 0)
		v.SetDefault("database."+vendor+".database", "")
		v.SetDefault("database."+vendor+".username", "")
		v.SetDefault("database."+vendor+".password", "")
	}

	v.SetDefault("vault.encryption_key", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "lockgate")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.refresh_token_length", 48)
	v.SetDefault("auth.two_factor.issuer", "LockGate")
	v.SetDefault("auth.two_factor.challenge_ttl", "5m")
	v.SetDefault("auth.two_factor.skew", 1)
	v.SetDefault("auth.two_factor.qr_code_size", 256)

	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.global.requests", 100)
	v.SetDefault("rate_limit.global.window", "1m")
	v.SetDefault("rate_limit.validate_pin.requests", 10)
	v.SetDefault("rate_limit.validate_pin.window", "1m")
	v.SetDefault("rate_limit.login.requests", 10)
	v.SetDefault("rate_limit.login.window", "1m")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "lockgate")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic_prefix", "lockgate")

	v.SetDefault("maintenance.pin_sweep", "@every 1m")
	v.SetDefault("maintenance.challenge_purge", "@hourly")
	v.SetDefault("maintenance.session_cleanup", "@hourly")
	v.SetDefault("maintenance.cache_purge", "@every 10m")
	v.SetDefault("maintenance.access_log_retention", "@daily")
	v.SetDefault("maintenance.access_log_retention_days", 0)
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
