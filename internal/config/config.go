// Package config implements TOML configuration loading, validation, and
// environment overrides for the 123pan client. Layering is defaults ->
// config file -> environment; CLI flags on top are applied by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Network     NetworkConfig     `toml:"network"`
	Upload      UploadConfig      `toml:"upload"`
	Cache       CacheConfig       `toml:"cache"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig holds the immutable client identity. Both fields are
// required; their absence is a fatal startup error. The secret is never
// logged in full.
type CredentialsConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// TokenFile overrides where the cached access token is persisted.
	TokenFile string `toml:"token_file"`
}

// NetworkConfig controls transport behavior: endpoint, retry ceiling, and
// backoff shape.
type NetworkConfig struct {
	BaseURL       string  `toml:"base_url"`
	MaxRetries    int     `toml:"max_retries"`
	BaseBackoff   string  `toml:"base_backoff"`
	MaxBackoff    string  `toml:"max_backoff"`
	BackoffFactor float64 `toml:"backoff_factor"`

	// RetryableCodes replaces the default retryable business-code set.
	RetryableCodes []int `toml:"retryable_codes"`
}

// UploadConfig controls the upload engine.
type UploadConfig struct {
	// DuplicatePolicy is "keep-both" or "overwrite".
	DuplicatePolicy string `toml:"duplicate_policy"`
	Workers         int    `toml:"workers"`
	CompleteRetries int    `toml:"complete_retries"`
	CompleteDelay   string `toml:"complete_delay"`
}

// CacheConfig controls the optional file-metadata cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	TTL     string `toml:"ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// DefaultBaseURL is the vendor's open platform endpoint.
const DefaultBaseURL = "https://open-api.123pan.com"

// Duplicate policy names accepted in config and flags.
const (
	PolicyKeepBoth  = "keep-both"
	PolicyOverwrite = "overwrite"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			BaseURL:       DefaultBaseURL,
			MaxRetries:    5,
			BaseBackoff:   "500ms",
			MaxBackoff:    "30s",
			BackoffFactor: 2.0,
		},
		Upload: UploadConfig{
			DuplicatePolicy: PolicyKeepBoth,
			Workers:         1,
			CompleteRetries: 5,
			CompleteDelay:   "2s",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     "1h",
		},
		Logging: LoggingConfig{
			LogLevel: "info",
		},
	}
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pan123.toml"
	}

	return filepath.Join(dir, "pan123", "config.toml")
}

// DefaultCachePath returns the conventional cache database location.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "pan123-cache.db"
	}

	return filepath.Join(dir, "pan123", "cache.db")
}

// Duration parses a config duration string, returning fallback for an
// empty value and an error for garbage.
func Duration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}

	return d, nil
}
