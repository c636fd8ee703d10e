// Command pan123 is a CLI for the 123pan open platform: listing, search,
// path resolution, directory creation, and instant/sliced uploads.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/binghezhouke/123/internal/config"
	"github.com/binghezhouke/123/internal/credfile"
	"github.com/binghezhouke/123/internal/dircache"
	"github.com/binghezhouke/123/internal/fileops"
	"github.com/binghezhouke/123/internal/pan"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
	flagNoCache    bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pan123",
		Short:   "123pan CLI client",
		Long:    "A CLI client for the 123pan open platform with instant (content-addressed) uploads.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "bypass the file metadata cache")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newURLCmd())

	return cmd
}

// appContext bundles everything a subcommand needs. Built once per
// invocation; Close releases the cache handle.
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger
	client *pan.Client
	tokens *pan.Manager
	files  *fileops.Service
	cache  dircache.Cache
}

// newAppContext loads config and wires the long-lived client handle that
// owns all component state — no ambient singletons.
func newAppContext(ctx context.Context) (*appContext, error) {
	cfg, err := config.Resolve(flagConfigPath)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg)

	baseBackoff, _ := config.Duration(cfg.Network.BaseBackoff, 0)
	maxBackoff, _ := config.Duration(cfg.Network.MaxBackoff, 0)

	client := pan.NewClient(cfg.Network.BaseURL, nil, pan.Options{
		MaxRetries:     cfg.Network.MaxRetries,
		BaseBackoff:    baseBackoff,
		MaxBackoff:     maxBackoff,
		BackoffFactor:  cfg.Network.BackoffFactor,
		RetryableCodes: cfg.Network.RetryableCodes,
		Logger:         logger,
	})

	tokenPath := cfg.Credentials.TokenFile
	if tokenPath == "" {
		tokenPath = credfile.DefaultPath()
	}

	tokens := pan.NewManager(client, credfile.New(tokenPath),
		cfg.Credentials.ClientID, cfg.Credentials.ClientSecret, logger)
	client.SetTokenSource(tokens)

	var cache dircache.Cache
	if cfg.Cache.Enabled && !flagNoCache {
		cache = openCache(ctx, cfg, logger)
	}

	return &appContext{
		cfg:    cfg,
		logger: logger,
		client: client,
		tokens: tokens,
		files:  fileops.New(client, cache, logger),
		cache:  cache,
	}, nil
}

// openCache opens the SQLite metadata cache, degrading to no cache on
// failure — a broken cache must never block the CLI.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) dircache.Cache {
	path := cfg.Cache.Path
	if path == "" {
		path = config.DefaultCachePath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logger.Warn("creating cache directory failed, continuing without cache",
			slog.String("error", err.Error()),
		)

		return nil
	}

	ttl, _ := config.Duration(cfg.Cache.TTL, dircache.DefaultTTL)

	cache, err := dircache.OpenSQLite(ctx, path, ttl, logger)
	if err != nil {
		logger.Warn("opening metadata cache failed, continuing without cache",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return cache
}

func (a *appContext) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing cache failed", slog.String("error", err.Error()))
		}
	}
}

// buildLogger creates an slog.Logger from the config log level; --verbose
// and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
