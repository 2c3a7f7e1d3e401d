package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigMissing is returned by LoadForDaemon when the file does not exist.
var ErrConfigMissing = errors.New("configuration file not found")

// Config holds the complete application configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Observer ObserverConfig `mapstructure:"observer"`
	Instance InstanceConfig `mapstructure:"instance"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Summary  SummaryConfig  `mapstructure:"summary"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // tsv, bolt, sqlite or redis
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the redis connection used by the redis backend
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	Key          string `mapstructure:"key"` // list holding the session log
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// TrackerConfig defines the polling loop
type TrackerConfig struct {
	PollInterval    string `mapstructure:"poll_interval"`
	IdleThreshold   string `mapstructure:"idle_threshold"`
	StartupAttempts int    `mapstructure:"startup_attempts"`
	StartupBackoff  string `mapstructure:"startup_backoff"`
}

// ObserverConfig names the external commands used to sample the desktop
type ObserverConfig struct {
	WindowCommand    []string `mapstructure:"window_command"`
	IdleCommand      []string `mapstructure:"idle_command"`
	PlaybackCommand  []string `mapstructure:"playback_command"`
	PlaybackOverride bool     `mapstructure:"playback_override"` // playing media is never idle
}

// InstanceConfig defines the single-instance guard
type InstanceConfig struct {
	LockPath string `mapstructure:"lock_path"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// SummaryConfig defines the daily usage summary
type SummaryConfig struct {
	DailyTime string `mapstructure:"daily_time"` // HH:MM, empty disables
	Top       int    `mapstructure:"top"`
}

// Load loads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	cfg, _, err := load(configPath)
	return cfg, err
}

// LoadForDaemon is Load for the tracker: the file must exist and an idle
// threshold must be configured.
func LoadForDaemon(configPath string) (*Config, error) {
	cfg, found, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, configPath)
	}

	threshold, err := time.ParseDuration(cfg.Tracker.IdleThreshold)
	if err != nil || threshold <= 0 {
		return nil, fmt.Errorf("invalid configuration: tracker.idle_threshold must be a positive duration, got %q", cfg.Tracker.IdleThreshold)
	}

	return cfg, nil
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// Keys returns every configuration key the application understands.
func Keys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

func load(configPath string) (*Config, bool, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TTW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
		found = false
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, found, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, found, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, found, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := xdgDir("XDG_DATA_HOME", ".local/share")

	// Storage defaults
	v.SetDefault("storage.type", "tsv")
	v.SetDefault("storage.path", filepath.Join(dataDir, "ttw", "sessions.tsv"))
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key", "ttw:sessions")
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Tracker defaults
	v.SetDefault("tracker.poll_interval", "200ms")
	v.SetDefault("tracker.idle_threshold", "")
	v.SetDefault("tracker.startup_attempts", 10)
	v.SetDefault("tracker.startup_backoff", "500ms")

	// Observer defaults
	v.SetDefault("observer.window_command", []string{"xdotool", "getwindowfocus", "getwindowclassname", "getwindowname"})
	v.SetDefault("observer.idle_command", []string{"xprintidle"})
	v.SetDefault("observer.playback_command", []string{"playerctl", "status"})
	v.SetDefault("observer.playback_override", true)

	// Instance defaults
	v.SetDefault("instance.lock_path", filepath.Join(xdgDir("XDG_RUNTIME_DIR", filepath.Join(".local", "share", "ttw")), "ttw.lock"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_address", "127.0.0.1:9464")

	// Summary defaults
	v.SetDefault("summary.daily_time", "")
	v.SetDefault("summary.top", 5)
}

// xdgDir returns $env, falling back to fallback under the home directory.
func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "tsv", "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for redis storage")
		}
	case "":
		cfg.Storage.Type = "tsv"
	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}

	durations := map[string]string{
		"tracker.poll_interval":   cfg.Tracker.PollInterval,
		"tracker.startup_backoff": cfg.Tracker.StartupBackoff,
	}
	if cfg.Tracker.IdleThreshold != "" {
		durations["tracker.idle_threshold"] = cfg.Tracker.IdleThreshold
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}

	if cfg.Tracker.StartupAttempts < 1 {
		return fmt.Errorf("tracker.startup_attempts must be at least 1, got %d", cfg.Tracker.StartupAttempts)
	}

	if len(cfg.Observer.WindowCommand) == 0 {
		return fmt.Errorf("observer.window_command is required")
	}
	if len(cfg.Observer.IdleCommand) == 0 {
		return fmt.Errorf("observer.idle_command is required")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", cfg.Logging.Level)
	}

	if cfg.Summary.DailyTime != "" {
		if _, err := time.Parse("15:04", cfg.Summary.DailyTime); err != nil {
			return fmt.Errorf("invalid summary.daily_time %q (expected HH:MM): %w", cfg.Summary.DailyTime, err)
		}
	}
	if cfg.Summary.Top < 1 {
		return fmt.Errorf("summary.top must be at least 1, got %d", cfg.Summary.Top)
	}

	return nil
}
