package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[credentials]
client_id = "my-id"
client_secret = "my-secret"
token_file = "/tmp/token.json"

[network]
base_url = "https://alt.example.com"
max_retries = 3
base_backoff = "250ms"
backoff_factor = 1.5
retryable_codes = [429]

[upload]
duplicate_policy = "overwrite"
workers = 4

[cache]
enabled = false

[logging]
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "my-id", cfg.Credentials.ClientID)
	assert.Equal(t, "my-secret", cfg.Credentials.ClientSecret)
	assert.Equal(t, "/tmp/token.json", cfg.Credentials.TokenFile)
	assert.Equal(t, "https://alt.example.com", cfg.Network.BaseURL)
	assert.Equal(t, 3, cfg.Network.MaxRetries)
	assert.Equal(t, []int{429}, cfg.Network.RetryableCodes)
	assert.Equal(t, PolicyOverwrite, cfg.Upload.DuplicatePolicy)
	assert.Equal(t, 4, cfg.Upload.Workers)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
[credentials]
client_id = "my-id"
client_secret = "my-secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Network.BaseURL)
	assert.Equal(t, 5, cfg.Network.MaxRetries)
	assert.Equal(t, "500ms", cfg.Network.BaseBackoff)
	assert.Equal(t, PolicyKeepBoth, cfg.Upload.DuplicatePolicy)
	assert.Equal(t, 1, cfg.Upload.Workers)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
}

func TestLoadMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
[network]
base_url = "https://alt.example.com"
`)

	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[credentials]
client_id = "file-id"
client_secret = "file-secret"
`)

	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvBaseURL, "https://env.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.Credentials.ClientID)
	assert.Equal(t, "file-secret", cfg.Credentials.ClientSecret)
	assert.Equal(t, "https://env.example.com", cfg.Network.BaseURL)
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.Credentials.ClientID)
	assert.Equal(t, DefaultBaseURL, cfg.Network.BaseURL)
}

func TestLoadOrDefaultWithoutCredentialsFails(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }},
		{"backoff factor below one", func(c *Config) { c.Network.BackoffFactor = 0.5 }},
		{"empty base url", func(c *Config) { c.Network.BaseURL = "" }},
		{"unknown duplicate policy", func(c *Config) { c.Upload.DuplicatePolicy = "rename" }},
		{"zero workers", func(c *Config) { c.Upload.Workers = 0 }},
		{"garbage backoff duration", func(c *Config) { c.Network.BaseBackoff = "fast" }},
		{"garbage cache ttl", func(c *Config) { c.Cache.TTL = "soon" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Credentials.ClientID = "id"
			cfg.Credentials.ClientSecret = "secret"
			tc.mutate(cfg)

			assert.Error(t, Validate(cfg))
		})
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration("", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = Duration("1h30m", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = Duration("yesterday", 0)
	assert.Error(t, err)
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeConfig(t, `[credentials`)

	_, err := Load(path)
	require.Error(t, err)
}
