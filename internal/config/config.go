package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Report   ReportConfig   `mapstructure:"report"`
	GitHub   GitHubConfig   `mapstructure:"github"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // "redis" or "sqlite"
	Path      string      `mapstructure:"path"` // sqlite database file
	CacheSize int         `mapstructure:"cache_size"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines which voice channel is tracked and in which time zone
// months and days are bucketed.
type TrackingConfig struct {
	ChannelID   string `mapstructure:"channel_id"`
	ChannelName string `mapstructure:"channel_name"`
	Timezone    string `mapstructure:"timezone"`
}

// NotifyConfig defines the outbound notification relay
type NotifyConfig struct {
	Type    string        `mapstructure:"type"` // "line", "webhook" or "log"
	Timeout string        `mapstructure:"timeout"`
	LINE    LINEConfig    `mapstructure:"line"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// LINEConfig defines LINE Messaging API push settings
type LINEConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	AccessToken string  `mapstructure:"access_token"`
	GroupID     string  `mapstructure:"group_id"`
	RateLimit   float64 `mapstructure:"rate_limit"` // messages per second
}

// WebhookConfig defines a generic chat webhook target
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// ReportConfig defines the daily report scheduler
type ReportConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	CatchUpOnStart bool `mapstructure:"catch_up_on_start"`
}

// GitHubConfig defines the GitHub issue comment relay
type GitHubConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Location resolves the configured tracking time zone.
func (c TrackingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("VOICETALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.path", "/var/lib/voicetally/voicetally.db")
	v.SetDefault("storage.cache_size", 256)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.channel_id", "")
	v.SetDefault("tracking.channel_name", "voice")
	v.SetDefault("tracking.timezone", "Local")

	// Notify defaults
	v.SetDefault("notify.type", "log")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.line.endpoint", "https://api.line.me/v2/bot/message/push")
	v.SetDefault("notify.line.access_token", "")
	v.SetDefault("notify.line.group_id", "")
	v.SetDefault("notify.line.rate_limit", 2.0)
	v.SetDefault("notify.webhook.url", "")

	// Report defaults
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.catch_up_on_start", false)

	// GitHub relay defaults
	v.SetDefault("github.enabled", false)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "", "redis":
		cfg.Storage.Type = "redis"
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for redis storage")
		}
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Storage.CacheSize < 0 {
		return fmt.Errorf("storage.cache_size must not be negative")
	}

	if cfg.Tracking.ChannelID == "" {
		return fmt.Errorf("tracking.channel_id is required")
	}
	if _, err := cfg.Tracking.Location(); err != nil {
		return fmt.Errorf("invalid tracking.timezone %q: %w", cfg.Tracking.Timezone, err)
	}

	if _, err := time.ParseDuration(cfg.Notify.Timeout); err != nil {
		return fmt.Errorf("invalid notify.timeout: %w", err)
	}

	switch cfg.Notify.Type {
	case "", "log":
		cfg.Notify.Type = "log"
	case "line":
		if cfg.Notify.LINE.AccessToken == "" || cfg.Notify.LINE.GroupID == "" {
			return fmt.Errorf("notify.line.access_token and notify.line.group_id are required")
		}
	case "webhook":
		if cfg.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required")
		}
	default:
		return fmt.Errorf("unsupported notify type: %s", cfg.Notify.Type)
	}

	return nil
}
