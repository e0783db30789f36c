package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "engine.max_steps")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
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

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateLocks()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

// validateEngine validates the EngineConfig.
func (c *Config) validateEngine() []ValidationError {
	var errs []ValidationError

	const minConcurrent = 1
	const maxConcurrent = 64
	if c.Engine.MaxConcurrentSessions < minConcurrent {
		errs = append(errs, ValidationError{
			Field:   "engine.max_concurrent_sessions",
			Value:   c.Engine.MaxConcurrentSessions,
			Message: fmt.Sprintf("must be at least %d", minConcurrent),
		})
	}
	if c.Engine.MaxConcurrentSessions > maxConcurrent {
		errs = append(errs, ValidationError{
			Field:   "engine.max_concurrent_sessions",
			Value:   c.Engine.MaxConcurrentSessions,
			Message: fmt.Sprintf("exceeds maximum of %d", maxConcurrent),
		})
	}

	const minSteps = 1
	if c.Engine.MaxSteps < minSteps {
		errs = append(errs, ValidationError{
			Field:   "engine.max_steps",
			Value:   c.Engine.MaxSteps,
			Message: fmt.Sprintf("must be at least %d", minSteps),
		})
	}

	if c.Engine.StepTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.step_timeout_seconds",
			Value:   c.Engine.StepTimeoutSeconds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	return errs
}

// validateLocks validates the LockConfig.
func (c *Config) validateLocks() []ValidationError {
	var errs []ValidationError

	if c.Locks.DefaultTTLSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "locks.default_ttl_seconds",
			Value:   c.Locks.DefaultTTLSeconds,
			Message: "must be positive",
		})
	}

	if c.Locks.CommonPathTTLSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "locks.common_path_ttl_seconds",
			Value:   c.Locks.CommonPathTTLSeconds,
			Message: "must be positive",
		})
	}

	if c.Locks.CommonPathTTLSeconds > c.Locks.DefaultTTLSeconds {
		errs = append(errs, ValidationError{
			Field:   "locks.common_path_ttl_seconds",
			Value:   c.Locks.CommonPathTTLSeconds,
			Message: fmt.Sprintf("should not exceed default_ttl_seconds (%d)", c.Locks.DefaultTTLSeconds),
		})
	}

	for i, base := range c.Locks.CommonPathBasenames {
		if strings.TrimSpace(base) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("locks.common_path_basenames[%d]", i),
				Value:   base,
				Message: "basename cannot be empty",
			})
		}
	}

	return errs
}

// validateStorage validates the StorageConfig.
func (c *Config) validateStorage() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Value:   c.Storage.Path,
			Message: "cannot be empty",
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig.
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !IsValidLogLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}
