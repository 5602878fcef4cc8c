// Package config loads and validates gantry's configuration. Values are
// layered: defaults, then the config file, then GANTRY_* environment
// variables, then flags bound through viper.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment variables, e.g. GANTRY_CONCURRENCY or
// GANTRY_LOG_LEVEL for the nested log.level key.
const envPrefix = "GANTRY"

// Config holds all gantry settings.
type Config struct {
	// Concurrency caps how many items run a stage at once.
	// 0 means unlimited. (default: number of CPUs)
	Concurrency int `mapstructure:"concurrency"`

	// Timeout bounds each item's stage execution. 0 disables the bound.
	// (default: 5m)
	Timeout time.Duration `mapstructure:"timeout"`

	// ContinueOnFailure keeps independent items running after a failure.
	// When false the run cancels outstanding work on the first failure.
	// (default: true)
	ContinueOnFailure bool `mapstructure:"continue_on_failure"`

	// Index is the package index root directory. Required by the install
	// and plan commands; there is no usable default.
	Index string `mapstructure:"index"`

	// Cache is the artifact cache directory. (default: XDG cache dir)
	Cache string `mapstructure:"cache"`

	// Env is the environment directory packages are installed into.
	// Relative paths resolve against the working directory.
	// (default: "gantry-env")
	Env string `mapstructure:"env"`

	// Log controls structured logging.
	Log LogConfig `mapstructure:"log"`

	// NoColor disables ANSI color in all output. (default: false)
	NoColor bool `mapstructure:"no_color"`

	// Plain forces the line-oriented renderer even on a TTY.
	// (default: false)
	Plain bool `mapstructure:"plain"`
}

// LogConfig controls the structured log sink.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	// (default: "info")
	Level string `mapstructure:"level"`

	// Format is the handler encoding: "json" or "text" (default: "json")
	Format string `mapstructure:"format"`

	// File is the log file path. Empty logs to stderr. (default: "")
	File string `mapstructure:"file"`

	// MaxSizeMB is the maximum log file size in megabytes before rotation
	// (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Concurrency:       runtime.NumCPU(),
		Timeout:           5 * time.Minute,
		ContinueOnFailure: true,
		Index:             "", // No default; install and plan require it.
		Cache:             CacheDir(),
		Env:               "gantry-env",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			File:       "", // Empty means stderr.
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		NoColor: false,
		Plain:   false,
	}
}

// SetDefaults registers default values with viper. Every key must be
// registered here: viper.Unmarshal only sees environment variables for
// keys it already knows about.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("concurrency", defaults.Concurrency)
	viper.SetDefault("timeout", defaults.Timeout)
	viper.SetDefault("continue_on_failure", defaults.ContinueOnFailure)
	viper.SetDefault("index", defaults.Index)
	viper.SetDefault("cache", defaults.Cache)
	viper.SetDefault("env", defaults.Env)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.format", defaults.Log.Format)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	viper.SetDefault("log.max_backups", defaults.Log.MaxBackups)

	viper.SetDefault("no_color", defaults.NoColor)
	viper.SetDefault("plain", defaults.Plain)
}

// Load reads configuration from the file at path, or from the default
// search locations when path is empty, layers GANTRY_* environment
// variables on top, unmarshals and validates the result. A missing file
// is only an error when a path was given explicitly.
func Load(path string) (*Config, error) {
	SetDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("failed to read config file").
				WithField("config").WithValue(path).WithCause(err)
		}
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.NewConfigError("failed to read config file").
					WithCause(err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration").
			WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoggingOptions maps the log section onto logging.Options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:    c.Log.Level,
		Format:   c.Log.Format,
		FilePath: c.Log.File,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
		},
	}
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gantry")
	}
	// Fall back to ~/.config/gantry
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gantry"
	}
	return filepath.Join(home, ".config", "gantry")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// CacheDir returns the path to the user's cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "gantry")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gantry", "cache")
	}
	return filepath.Join(home, ".cache", "gantry")
}
