package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Environment variable names. The secret can live outside the config file
// so the file itself stays shareable.
const (
	EnvConfigPath   = "PAN123_CONFIG"
	EnvClientID     = "PAN123_CLIENT_ID"
	EnvClientSecret = "PAN123_CLIENT_SECRET"
	EnvBaseURL      = "PAN123_BASE_URL"
)

// Load reads and parses a TOML config file and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns the
// defaults with environment overrides applied. Validation still runs, so
// missing credentials fail fast either way.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		applyEnv(cfg)

		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// Resolve determines the config path (flag > environment > default) and
// loads it.
func Resolve(flagPath string) (*Config, error) {
	path := DefaultConfigPath()

	if env := os.Getenv(EnvConfigPath); env != "" {
		path = env
	}

	if flagPath != "" {
		path = flagPath
	}

	return LoadOrDefault(path)
}

// applyEnv overlays environment variables onto the parsed config.
// Environment wins over the file because one-off overrides should not
// require editing it.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvClientID); v != "" {
		cfg.Credentials.ClientID = v
	}

	if v := os.Getenv(EnvClientSecret); v != "" {
		cfg.Credentials.ClientSecret = v
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Network.BaseURL = v
	}
}

// Validate checks the invariants the rest of the program relies on.
func Validate(cfg *Config) error {
	if cfg.Credentials.ClientID == "" || cfg.Credentials.ClientSecret == "" {
		return fmt.Errorf("client_id and client_secret are required (config [credentials] or %s/%s)",
			EnvClientID, EnvClientSecret)
	}

	if cfg.Network.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}

	if cfg.Network.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}

	if cfg.Network.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1")
	}

	switch cfg.Upload.DuplicatePolicy {
	case PolicyKeepBoth, PolicyOverwrite:
	default:
		return fmt.Errorf("duplicate_policy must be %q or %q, got %q",
			PolicyKeepBoth, PolicyOverwrite, cfg.Upload.DuplicatePolicy)
	}

	if cfg.Upload.Workers < 1 {
		return fmt.Errorf("upload workers must be >= 1")
	}

	// Durations must at least parse.
	for _, pair := range []struct{ name, value string }{
		{"base_backoff", cfg.Network.BaseBackoff},
		{"max_backoff", cfg.Network.MaxBackoff},
		{"complete_delay", cfg.Upload.CompleteDelay},
		{"cache ttl", cfg.Cache.TTL},
	} {
		if _, err := Duration(pair.value, 0); err != nil {
			return fmt.Errorf("%s: %w", pair.name, err)
		}
	}

	return nil
}
