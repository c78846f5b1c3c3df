package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Idle     IdleConfig     `mapstructure:"idle"`
	Settings SettingsConfig `mapstructure:"settings"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

// IdleConfig defines idle detection timing
type IdleConfig struct {
	InitialDelay     string `mapstructure:"initial_delay"`
	Period           string `mapstructure:"period"`
	HookPollInterval string `mapstructure:"hook_poll_interval"`
}

// SettingsConfig points at the user-editable settings file
type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type   string       `mapstructure:"type"` // "sqlite", "redis" or "memory"
	Path   string       `mapstructure:"path"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
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

// MemoryConfig bounds the in-memory store
type MemoryConfig struct {
	Size int `mapstructure:"size"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// TrackingConfig defines who is tracked and how long records are kept
type TrackingConfig struct {
	UserID        int64  `mapstructure:"user_id"`
	WatchLocks    bool   `mapstructure:"watch_locks"`
	RetentionDays int    `mapstructure:"retention_days"`
	PruneTime     string `mapstructure:"prune_time"`
}

// Load loads configuration from file, environment variables and any
// flags bound through BindFlags.
func Load(configPath string) (*Config, error) {
	return load(configPath, nil)
}

// LoadWithFlags is Load with command-line overrides taking precedence.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	return load(configPath, flags)
}

func load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("ACTIVITYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
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

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"storage":      "storage.type",
	"storage-path": "storage.path",
	"user-id":      "tracking.user_id",
	"metrics-port": "metrics.port",
}

// BindFlags registers the overridable flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
	fs.String("storage", "", "storage backend (sqlite, redis, memory)")
	fs.String("storage-path", "", "sqlite database path")
	fs.Int64("user-id", 0, "user id to attribute usage to")
	fs.Int("metrics-port", 0, "metrics listen port")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Idle detection defaults
	v.SetDefault("idle.initial_delay", "60s")
	v.SetDefault("idle.period", "1s")
	v.SetDefault("idle.hook_poll_interval", "250ms")

	// Settings defaults
	v.SetDefault("settings.path", defaultSettingsPath())

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.path", defaultDataPath())
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.memory.size", 10000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)

	// Tracking defaults
	v.SetDefault("tracking.user_id", int64(os.Getuid()))
	v.SetDefault("tracking.watch_locks", true)
	v.SetDefault("tracking.retention_days", 90)
	v.SetDefault("tracking.prune_time", "03:00")
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "activityd/settings.yaml"
	}
	return filepath.Join(dir, "activityd", "settings.yaml")
}

func defaultDataPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "activityd", "activity.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "activity.db"
	}
	return filepath.Join(home, ".local", "state", "activityd", "activity.db")
}

// Durations parses the idle timing strings.
func (c IdleConfig) Durations() (initialDelay, period, hookPoll time.Duration, err error) {
	if initialDelay, err = time.ParseDuration(c.InitialDelay); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid idle.initial_delay: %w", err)
	}
	if period, err = time.ParseDuration(c.Period); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid idle.period: %w", err)
	}
	if hookPoll, err = time.ParseDuration(c.HookPollInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid idle.hook_poll_interval: %w", err)
	}
	return initialDelay, period, hookPoll, nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	initialDelay, period, hookPoll, err := cfg.Idle.Durations()
	if err != nil {
		return err
	}
	if initialDelay <= 0 || period <= 0 || hookPoll <= 0 {
		return fmt.Errorf("idle durations must be positive")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		// Validate storage path
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	case "memory":
		if cfg.Storage.Memory.Size <= 0 {
			return fmt.Errorf("invalid memory store size: %d", cfg.Storage.Memory.Size)
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	if _, err := time.Parse("15:04", cfg.Tracking.PruneTime); err != nil {
		return fmt.Errorf("invalid tracking.prune_time: %w", err)
	}

	return nil
}
