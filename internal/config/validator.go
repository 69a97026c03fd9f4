package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "runner.auto_limit")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRunner()...)
	errors = append(errors, c.validateNotifications()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRunner validates the RunnerConfig
func (c *Config) validateRunner() []ValidationError {
	var errors []ValidationError

	if c.Runner.LatencyMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.latency_ms",
			Value:   c.Runner.LatencyMs,
			Message: "must be non-negative",
		})
	}

	// One hour is far beyond any dry run we simulate
	const maxLatencyMs = 60 * 60 * 1000
	if c.Runner.LatencyMs > maxLatencyMs {
		errors = append(errors, ValidationError{
			Field:   "runner.latency_ms",
			Value:   c.Runner.LatencyMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxLatencyMs),
		})
	}

	if c.Runner.AutoLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.auto_limit",
			Value:   c.Runner.AutoLimit,
			Message: "must be positive",
		})
	}

	if c.Runner.UnknownTableBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.unknown_table_bytes",
			Value:   c.Runner.UnknownTableBytes,
			Message: "must be non-negative",
		})
	}

	if c.Runner.CacheSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.cache_size",
			Value:   c.Runner.CacheSize,
			Message: "must be positive",
		})
	}

	return errors
}

// validateNotifications validates the NotificationConfig
func (c *Config) validateNotifications() []ValidationError {
	var errors []ValidationError

	if c.Notifications.Enabled && strings.TrimSpace(c.Notifications.Title) == "" {
		errors = append(errors, ValidationError{
			Field:   "notifications.title",
			Value:   c.Notifications.Title,
			Message: "must not be empty when notifications are enabled",
		})
	}

	// Sound path only matters if sound is actually used
	if c.Notifications.UseSound && c.Notifications.SoundPath != "" {
		if _, err := os.Stat(c.Notifications.SoundPath); err != nil {
			errors = append(errors, ValidationError{
				Field:   "notifications.sound_path",
				Value:   c.Notifications.SoundPath,
				Message: "file does not exist",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
