package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Timer   TimerConfig   `mapstructure:"timer"`
	Roster  RosterConfig  `mapstructure:"roster"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// BackendConfig defines how to reach the attendance API
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	UserID         string `mapstructure:"user_id"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

// TimerConfig defines the session timer cadence
type TimerConfig struct {
	TickInterval       string `mapstructure:"tick_interval"`
	ReconcileInterval  string `mapstructure:"reconcile_interval"`
	FreshSessionWindow string `mapstructure:"fresh_session_window"`
}

// RosterConfig defines the team online-status poll used by managerial views
type RosterConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PollInterval string `mapstructure:"poll_interval"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type                 string      `mapstructure:"type"` // "redis" or "memory"
	Redis                RedisConfig `mapstructure:"redis"`
	HistoryRetentionDays int         `mapstructure:"history_retention_days"`
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

// ServerConfig defines the local listeners
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	ControlPort int    `mapstructure:"control_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WORKTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a viper instance populated with only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.user_id", "")
	v.SetDefault("backend.request_timeout", "10s")

	// Timer defaults
	v.SetDefault("timer.tick_interval", "1s")
	v.SetDefault("timer.reconcile_interval", "10s")
	v.SetDefault("timer.fresh_session_window", "5m")

	// Roster defaults
	v.SetDefault("roster.enabled", false)
	v.SetDefault("roster.poll_interval", "15s")
	v.SetDefault("roster.cache_size", 512)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.history_retention_days", 90)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 1)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.control_port", 8787)
	v.SetDefault("server.metrics_port", 9187)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.UserID == "" {
		return fmt.Errorf("backend.user_id is required")
	}

	if cfg.Server.ControlPort <= 0 || cfg.Server.ControlPort > 65535 {
		return fmt.Errorf("invalid control port: %d", cfg.Server.ControlPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	durations := map[string]string{
		"backend.request_timeout":    cfg.Backend.RequestTimeout,
		"timer.tick_interval":        cfg.Timer.TickInterval,
		"timer.reconcile_interval":   cfg.Timer.ReconcileInterval,
		"timer.fresh_session_window": cfg.Timer.FreshSessionWindow,
		"roster.poll_interval":       cfg.Roster.PollInterval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	tick, _ := time.ParseDuration(cfg.Timer.TickInterval)
	reconcile, _ := time.ParseDuration(cfg.Timer.ReconcileInterval)
	if reconcile < tick {
		return fmt.Errorf("timer.reconcile_interval (%s) must not be shorter than timer.tick_interval (%s)", reconcile, tick)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "redis"
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid storage type: %s (must be redis or memory)", cfg.Storage.Type)
	}

	return nil
}
