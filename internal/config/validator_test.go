package config

import (
	"strings"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/errors"
)

func TestValidateDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v, want nil", err)
	}
}

func TestValidateSingleViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "negative concurrency",
			mutate: func(c *Config) { c.Concurrency = -1 },
			field:  "concurrency",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Timeout = -time.Second },
			field:  "timeout",
		},
		{
			name:   "empty cache",
			mutate: func(c *Config) { c.Cache = "" },
			field:  "cache",
		},
		{
			name:   "empty env",
			mutate: func(c *Config) { c.Env = "" },
			field:  "env",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			field:  "log.level",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			field:  "log.format",
		},
		{
			name:   "negative max size",
			mutate: func(c *Config) { c.Log.MaxSizeMB = -1 },
			field:  "log.max_size_mb",
		},
		{
			name:   "negative max backups",
			mutate: func(c *Config) { c.Log.MaxBackups = -2 },
			field:  "log.max_backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() error %q should mention %q", err, tt.field)
			}

			var cfgErr *errors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Validate() error = %T, want to unwrap *errors.ConfigError", err)
			}
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	cfg := &Config{
		Concurrency: -1,
		Timeout:     -time.Second,
		Cache:       "",
		Env:         "",
		Log: LogConfig{
			Level:      "loud",
			Format:     "xml",
			MaxSizeMB:  -1,
			MaxBackups: -1,
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("Validate() error = %T, want joined error", err)
	}
	if got := len(joined.Unwrap()); got != 8 {
		t.Errorf("Validate() collected %d violations, want 8:\n%v", got, err)
	}

	for _, field := range []string{
		"concurrency", "timeout", "cache", "env",
		"log.level", "log.format", "log.max_size_mb", "log.max_backups",
	} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Validate() error should mention %q", field)
		}
	}
}

func TestValidateLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "WARN"
	cfg.Log.Format = "JSON"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for upper-case level/format", err)
	}
}

func TestValidateZeroMeansUnlimited(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 0
	cfg.Timeout = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for zero concurrency/timeout", err)
	}
}

func TestValidLogLevels(t *testing.T) {
	want := []string{"debug", "info", "warn", "error"}
	got := ValidLogLevels()
	if len(got) != len(want) {
		t.Fatalf("ValidLogLevels() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
