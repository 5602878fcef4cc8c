package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gantryhq/gantry/internal/errors"
)

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log output formats.
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// Validate checks the Config for invalid values. All violations are
// collected and returned as a single joined error; nil means the
// configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateExecution()...)
	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validateLog()...)

	return errors.Join(errs...)
}

// validateExecution checks the stage execution knobs.
func (c *Config) validateExecution() []error {
	var errs []error

	if c.Concurrency < 0 {
		errs = append(errs, errors.NewConfigError("must be non-negative (0 means unlimited)").
			WithField("concurrency").WithValue(c.Concurrency))
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.NewConfigError("must be non-negative (0 disables the timeout)").
			WithField("timeout").WithValue(c.Timeout))
	}

	return errs
}

// validatePaths checks the directory settings. Index is deliberately not
// required here: only install and plan need it, and they enforce it.
func (c *Config) validatePaths() []error {
	var errs []error

	if c.Cache == "" {
		errs = append(errs, errors.NewConfigError("must not be empty").
			WithField("cache"))
	}

	if c.Env == "" {
		errs = append(errs, errors.NewConfigError("must not be empty").
			WithField("env"))
	}

	return errs
}

// validateLog checks the log section.
func (c *Config) validateLog() []error {
	var errs []error

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errs = append(errs, errors.NewConfigError(
			fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", "))).
			WithField("log.level").WithValue(c.Log.Level))
	}

	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Log.Format)) {
		errs = append(errs, errors.NewConfigError(
			fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", "))).
			WithField("log.format").WithValue(c.Log.Format))
	}

	if c.Log.MaxSizeMB < 0 {
		errs = append(errs, errors.NewConfigError("must be non-negative (0 disables rotation)").
			WithField("log.max_size_mb").WithValue(c.Log.MaxSizeMB))
	}

	if c.Log.MaxBackups < 0 {
		errs = append(errs, errors.NewConfigError("must be non-negative").
			WithField("log.max_backups").WithValue(c.Log.MaxBackups))
	}

	return errs
}
