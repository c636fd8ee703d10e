package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binghezhouke/123/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests that
// call buildLogger directly must set globals after saving and restoring them.

func withFlags(t *testing.T, verbose, quiet bool) {
	t.Helper()

	oldVerbose, oldQuiet := flagVerbose, flagQuiet
	t.Cleanup(func() {
		flagVerbose = oldVerbose
		flagQuiet = oldQuiet
	})

	flagVerbose = verbose
	flagQuiet = quiet
}

func TestBuildLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		verbose  bool
		quiet    bool
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default info", "info", false, false, slog.LevelInfo, slog.LevelDebug},
		{"config debug", "debug", false, false, slog.LevelDebug, slog.LevelDebug - 4},
		{"config warn", "warn", false, false, slog.LevelWarn, slog.LevelInfo},
		{"config error", "error", false, false, slog.LevelError, slog.LevelWarn},
		{"verbose wins", "error", true, false, slog.LevelDebug, slog.LevelDebug - 4},
		{"quiet wins", "debug", false, true, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlags(t, tt.verbose, tt.quiet)

			cfg := config.DefaultConfig()
			cfg.Logging.LogLevel = tt.level

			logger := buildLogger(cfg)
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(t.Context(), tt.enabled))
			assert.False(t, logger.Enabled(t.Context(), tt.disabled))
		})
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"login", "logout", "ls", "stat", "path", "mkdir", "upload", "url"}
	for _, name := range want {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		assert.True(t, found, "subcommand %q not registered", name)
	}
}

func TestBuildEngineOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Upload.DuplicatePolicy = config.PolicyKeepBoth
	cfg.Upload.Workers = 2

	app := &appContext{cfg: cfg, logger: slog.Default()}

	engine := buildEngine(app, false, 0)
	require.NotNil(t, engine)

	engine = buildEngine(app, true, 8)
	require.NotNil(t, engine)
}
