package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the motorlist backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Email      EmailConfig      `mapstructure:"email"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Batch      BatchConfig      `mapstructure:"batch"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	BaseURL   string `mapstructure:"base_url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string       `mapstructure:"driver"`
	Path         string       `mapstructure:"path"`
	DSN          string       `mapstructure:"dsn"`
	MaxOpenConns int          `mapstructure:"max_open_conns"`
	MaxIdleConns int          `mapstructure:"max_idle_conns"`
	Postgres     DBAuthConfig `mapstructure:"postgres"`
	MySQL        DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Tokens    TokenConfig       `mapstructure:"tokens"`
	Captcha   CaptchaConfig     `mapstructure:"captcha"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// TokenConfig configures activation and password reset tokens.
type TokenConfig struct {
	ActivationTTL time.Duration `mapstructure:"activation_ttl"`
	ResetTTL      time.Duration `mapstructure:"reset_ttl"`
	ResetThrottle time.Duration `mapstructure:"reset_throttle"`
	TokenBytes    int           `mapstructure:"token_bytes"`
}

// CaptchaConfig holds the answer expected on public token requests.
type CaptchaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Answer  string `mapstructure:"answer"`
}

// RateLimitSettings bounds requests per client on the auth routes.
type RateLimitSettings struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP          SMTPConfig `mapstructure:"smtp"`
	ActivationURL string     `mapstructure:"activation_url"`
	ResetURL      string     `mapstructure:"reset_url"`
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

// SchedulerConfig configures the cron-driven batch jobs and maintenance.
type SchedulerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	CreateBatchSchedule string        `mapstructure:"create_batch_schedule"`
	CheckBatchSchedule  string        `mapstructure:"check_batch_schedule"`
	CleanupSchedule     string        `mapstructure:"cleanup_schedule"`
	InternalToken       string        `mapstructure:"internal_token"`
	JobTimeout          time.Duration `mapstructure:"job_timeout"`
}

// BatchConfig configures search batch processing.
type BatchConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("MOTORLIST")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.base_url", "http://localhost:3000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/motorlist.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("auth.jwt.issuer", "motorlist")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.tokens.activation_ttl", "24h")
	v.SetDefault("auth.tokens.reset_ttl", "24h")
	v.SetDefault("auth.tokens.reset_throttle", "30m")
	v.SetDefault("auth.tokens.token_bytes", 32)
	v.SetDefault("auth.captcha.enabled", false)
	v.SetDefault("auth.captcha.answer", "")
	v.SetDefault("auth.rate_limit.requests", 20)
	v.SetDefault("auth.rate_limit.window", "1m")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
	v.SetDefault("email.activation_url", "")
	v.SetDefault("email.reset_url", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.create_batch_schedule", "*/5 * * * *")
	v.SetDefault("scheduler.check_batch_schedule", "*/10 * * * *")
	v.SetDefault("scheduler.cleanup_schedule", "@daily")
	v.SetDefault("scheduler.internal_token", "")
	v.SetDefault("scheduler.job_timeout", "2m")

	v.SetDefault("batch.max_items", 100)
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
