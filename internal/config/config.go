package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete agentcore configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Locks   LockConfig    `mapstructure:"locks"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig controls the Execution Engine's worker pool and step budget.
type EngineConfig struct {
	// MaxConcurrentSessions bounds the number of sessions the engine will
	// drive at once; additional Run calls queue FIFO.
	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`
	// MaxSteps caps the number of model/tool round trips a single run may
	// take before it is force-transitioned to need_clarification.
	MaxSteps int `mapstructure:"max_steps"`
	// StepTimeoutSeconds is reserved for a future per-step deadline; 0
	// disables it and no timeout is currently enforced.
	StepTimeoutSeconds int `mapstructure:"step_timeout_seconds"`
}

// LockConfig controls the Lock Arbiter's TTLs and common-path classification.
type LockConfig struct {
	// DefaultTTLSeconds is how long a lock is held before it is considered
	// expired and eligible for purge.
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
	// CommonPathTTLSeconds is the shorter TTL applied to paths matched by
	// CommonPathBasenames, so contention on frequently-touched manifest
	// files (go.mod, package.json, ...) resolves quickly.
	CommonPathTTLSeconds int `mapstructure:"common_path_ttl_seconds"`
	// CommonPathBasenames lists file basenames treated as common paths.
	CommonPathBasenames []string `mapstructure:"common_path_basenames"`
}

// StorageConfig controls the Persistence Store's SQLite database location.
type StorageConfig struct {
	// Path is the filesystem path to the SQLite database file.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls structured log output and rotation.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates the log file once it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated log files to retain.
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files.
	Compress bool `mapstructure:"compress"`
}

// DefaultCommonPathBasenames returns the built-in set of file basenames
// classified as common paths for lock TTL purposes: package manifests and
// lockfiles that many sessions are likely to touch incidentally.
func DefaultCommonPathBasenames() []string {
	return []string{
		"go.mod", "go.sum",
		"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"Cargo.toml", "Cargo.lock",
		"Gemfile", "Gemfile.lock",
		"requirements.txt", "poetry.lock",
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrentSessions: 3,
			MaxSteps:              50,
			StepTimeoutSeconds:    0,
		},
		Locks: LockConfig{
			DefaultTTLSeconds:    30,
			CommonPathTTLSeconds: 5,
			CommonPathBasenames:  DefaultCommonPathBasenames(),
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Pool returns the configured worker pool size (MaxConcurrentSessions),
// guarding against a non-positive value from a malformed config file.
func (c *EngineConfig) Pool() int {
	if c.MaxConcurrentSessions <= 0 {
		return 1
	}
	return c.MaxConcurrentSessions
}

// DefaultTTL returns the default lock TTL as a time.Duration.
func (c *LockConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// CommonPathTTL returns the common-path lock TTL as a time.Duration.
func (c *LockConfig) CommonPathTTL() time.Duration {
	return time.Duration(c.CommonPathTTLSeconds) * time.Second
}

// IsCommonPath reports whether path's basename matches one of the
// configured common-path basenames.
func (c *LockConfig) IsCommonPath(path string) bool {
	base := filepath.Base(path)
	return slices.Contains(c.CommonPathBasenames, base)
}

// SetDefaults registers default values with viper so that Load succeeds
// even when no config file is present.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("engine.max_concurrent_sessions", defaults.Engine.MaxConcurrentSessions)
	viper.SetDefault("engine.max_steps", defaults.Engine.MaxSteps)
	viper.SetDefault("engine.step_timeout_seconds", defaults.Engine.StepTimeoutSeconds)

	viper.SetDefault("locks.default_ttl_seconds", defaults.Locks.DefaultTTLSeconds)
	viper.SetDefault("locks.common_path_ttl_seconds", defaults.Locks.CommonPathTTLSeconds)
	viper.SetDefault("locks.common_path_basenames", defaults.Locks.CommonPathBasenames)

	viper.SetDefault("storage.path", defaults.Storage.Path)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's agentcore config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentcore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentcore"
	}
	return filepath.Join(home, ".config", "agentcore")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultStoragePath returns the default SQLite database path, under the
// user's data directory (XDG_DATA_HOME, or ~/.local/share on fallback).
func DefaultStoragePath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentcore", "agentcore.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentcore.db"
	}
	return filepath.Join(home, ".local", "share", "agentcore", "agentcore.db")
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// IsValidLogLevel checks if the given level is valid.
func IsValidLogLevel(level string) bool {
	return slices.Contains(ValidLogLevels(), level)
}
