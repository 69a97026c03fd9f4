package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete trialrun configuration
type Config struct {
	Trial         TrialConfig        `mapstructure:"trial"`
	Runner        RunnerConfig       `mapstructure:"runner"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	TUI           TUIConfig          `mapstructure:"tui"`
}

// TrialConfig controls how the coordinator starts runs
type TrialConfig struct {
	// AutoTrigger runs the query as soon as it is loaded when it already has a
	// result or takes parameters (default: true)
	AutoTrigger bool `mapstructure:"auto_trigger"`
	// MaxAge lets the runner reuse a cached result younger than this.
	// Zero or negative always executes (default: 0)
	MaxAge time.Duration `mapstructure:"max_age"`
}

// RunnerConfig controls the simulated dry-run executor
type RunnerConfig struct {
	// LatencyMs is how long a run stays in the processing state (default: 750)
	LatencyMs int `mapstructure:"latency_ms"`
	// AutoLimit is appended as a LIMIT clause to queries with auto limit enabled (default: 1000)
	AutoLimit int `mapstructure:"auto_limit"`
	// UnknownTableBytes is the byte estimate for tables missing from the data source catalog (default: 1MiB)
	UnknownTableBytes int64 `mapstructure:"unknown_table_bytes"`
	// CacheSize is the number of results kept for max-age reuse (default: 128)
	CacheSize int `mapstructure:"cache_size"`
}

// NotificationConfig controls run-completion notifications
type NotificationConfig struct {
	// Enabled controls whether notifications are delivered (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Title is the notification title (default: "trialrun")
	Title string `mapstructure:"title"`
	// UseSound plays system sound on macOS in addition to bell (default: false)
	UseSound bool `mapstructure:"use_sound"`
	// SoundPath custom sound file path (macOS only, default: system alert sound)
	SoundPath string `mapstructure:"sound_path"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is written to a file (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Dir is where debug.log is written. Empty means <config dir>/logs
	Dir string `mapstructure:"dir"`
}

// TUIConfig controls the terminal UI behavior
type TUIConfig struct {
	// ShowHelp renders the key binding help line (default: true)
	ShowHelp bool `mapstructure:"show_help"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Trial: TrialConfig{
			AutoTrigger: true,
			MaxAge:      0,
		},
		Runner: RunnerConfig{
			LatencyMs:         750,
			AutoLimit:         1000,
			UnknownTableBytes: 1 << 20,
			CacheSize:         128,
		},
		Notifications: NotificationConfig{
			Enabled:   true,
			Title:     "trialrun",
			UseSound:  false,
			SoundPath: "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Dir:        "",
		},
		TUI: TUIConfig{
			ShowHelp: true,
		},
	}
}

// Latency returns the runner latency as a time.Duration
func (c *RunnerConfig) Latency() time.Duration {
	return time.Duration(c.LatencyMs) * time.Millisecond
}

// ResolveLogDir returns the directory for debug.log.
func (c *LoggingConfig) ResolveLogDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Trial defaults
	viper.SetDefault("trial.auto_trigger", defaults.Trial.AutoTrigger)
	viper.SetDefault("trial.max_age", defaults.Trial.MaxAge)

	// Runner defaults
	viper.SetDefault("runner.latency_ms", defaults.Runner.LatencyMs)
	viper.SetDefault("runner.auto_limit", defaults.Runner.AutoLimit)
	viper.SetDefault("runner.unknown_table_bytes", defaults.Runner.UnknownTableBytes)
	viper.SetDefault("runner.cache_size", defaults.Runner.CacheSize)

	// Notification defaults
	viper.SetDefault("notifications.enabled", defaults.Notifications.Enabled)
	viper.SetDefault("notifications.title", defaults.Notifications.Title)
	viper.SetDefault("notifications.use_sound", defaults.Notifications.UseSound)
	viper.SetDefault("notifications.sound_path", defaults.Notifications.SoundPath)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// TUI defaults
	viper.SetDefault("tui.show_help", defaults.TUI.ShowHelp)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "trialrun")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trialrun"
	}
	return filepath.Join(home, ".config", "trialrun")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
