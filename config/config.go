// Package config loads the alerthub configuration from YAML with
// environment variable overrides (ALERTHUB_ prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kart-io/alerthub/core"
)

// Storage backend names
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full process configuration
type Config struct {
	Logging       LoggingConfig       `mapstructure:"logging"`
	Service       ServiceConfig       `mapstructure:"service"`
	Store         StoreConfig         `mapstructure:"store"`
	Queue         QueueConfig         `mapstructure:"queue"`
	API           APIConfig           `mapstructure:"api"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Push          PushConfig          `mapstructure:"push"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	SystemMonitor SystemMonitorConfig `mapstructure:"system_monitor"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is one of silent, error, warn, info, debug
	Level string `mapstructure:"level"`
}

// ServiceConfig mirrors the notification service configuration
type ServiceConfig struct {
	MaxNotifications   int           `mapstructure:"max_notifications"`
	DefaultExpiry      time.Duration `mapstructure:"default_expiry"`
	DefaultPriority    string        `mapstructure:"default_priority"`
	AutoMarkAsRead     bool          `mapstructure:"auto_mark_as_read"`
	DedupWindow        time.Duration `mapstructure:"dedup_window"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMaxEvents int           `mapstructure:"rate_limit_max_events"`
}

// StoreConfig selects and configures the notification store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"`

	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// SQLiteConfig configures the SQLite backends
type SQLiteConfig struct {
	Path             string `mapstructure:"path"`
	InteractionsPath string `mapstructure:"interactions_path"`
}

// RedisConfig configures Redis connections
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// QueueConfig selects and configures the queue backend
type QueueConfig struct {
	// Backend is memory or redis; empty disables the queue worker
	Backend     string        `mapstructure:"backend"`
	BufferSize  int           `mapstructure:"buffer_size"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`

	Redis RedisQueueConfig `mapstructure:"redis"`
}

// RedisQueueConfig configures the Redis Streams queue
type RedisQueueConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

// APIConfig controls the HTTP API
type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// PushConfig controls the push handler
type PushConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URLs        []string      `mapstructure:"urls"`
	MinPriority string        `mapstructure:"min_priority"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WebhookConfig controls the webhook handler
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SystemMonitorConfig controls the built-in system provider
type SystemMonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CheckInterval      time.Duration `mapstructure:"check_interval"`
	GoroutineThreshold int           `mapstructure:"goroutine_threshold"`
	HeapThresholdBytes uint64        `mapstructure:"heap_threshold_bytes"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Service: ServiceConfig{
			MaxNotifications: 1000,
			DefaultExpiry:    7 * 24 * time.Hour,
			DefaultPriority:  string(core.PriorityMedium),
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			SQLite: SQLiteConfig{
				Path:             "data/notifications.db",
				InteractionsPath: "data/interactions.db",
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
		},
		Queue: QueueConfig{
			Backend:     BackendMemory,
			BufferSize:  1024,
			Concurrency: 2,
			MaxAttempts: 3,
			Backoff:     time.Second,
			Redis:       RedisQueueConfig{Addr: "localhost:6379"},
		},
		API: APIConfig{
			Enabled:      true,
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "alerthub",
		},
	}
}

// Load reads configuration from the given file (optional) merged over
// defaults, with ALERTHUB_ environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, Default())

	v.SetEnvPrefix("ALERTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects impossible configurations early
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLite.Path == "" {
		return fmt.Errorf("sqlite store requires a path")
	}

	switch c.Queue.Backend {
	case "", BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Service.DefaultPriority != "" && !core.Priority(c.Service.DefaultPriority).IsValid() {
		return fmt.Errorf("unknown default priority %q", c.Service.DefaultPriority)
	}
	if c.Push.Enabled && len(c.Push.URLs) == 0 {
		return fmt.Errorf("push handler enabled without any URLs")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook handler enabled without a URL")
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("service.max_notifications", d.Service.MaxNotifications)
	v.SetDefault("service.default_expiry", d.Service.DefaultExpiry)
	v.SetDefault("service.default_priority", d.Service.DefaultPriority)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite.path", d.Store.SQLite.Path)
	v.SetDefault("store.sqlite.interactions_path", d.Store.SQLite.InteractionsPath)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)

	v.SetDefault("queue.backend", d.Queue.Backend)
	v.SetDefault("queue.buffer_size", d.Queue.BufferSize)
	v.SetDefault("queue.concurrency", d.Queue.Concurrency)
	v.SetDefault("queue.max_attempts", d.Queue.MaxAttempts)
	v.SetDefault("queue.backoff", d.Queue.Backoff)
	v.SetDefault("queue.redis.addr", d.Queue.Redis.Addr)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.max_body_bytes", d.API.MaxBodyBytes)

	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
}
