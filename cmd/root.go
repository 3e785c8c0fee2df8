package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jandubois/checks/internal/checks"
	"github.com/jandubois/checks/internal/config"
	"github.com/jandubois/checks/internal/dcache"
	"github.com/jandubois/checks/internal/runner"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/jandubois/checks/cmd.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "checks",
	Short: "On-demand service checks for a monitoring agent",
	Long: `Checks answers single-shot monitoring questions about local services:
whether a service is installed and running, which sub-entities it exposes
(discovery), and point metrics for one entity. Answers go to stdout;
diagnostics go to stderr.`,
	Version:      Version,
	SilenceUsage: true,
}

const servicesGroupID = "services"

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: servicesGroupID, Title: "Service Checks:"})
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path")
	rootCmd.PersistentFlags().String("cache-dir", "", "Discovery cache directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
}

func setupLogging(cmd *cobra.Command) {
	levelStr, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newContext assembles the check context from flags and config: the command
// runner, the discovery cache backend, the clock and stdout.
func newContext(cmd *cobra.Command) (*checks.Context, *config.Config, func(), error) {
	setupLogging(cmd)

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}

	r := runner.New()
	if len(cfg.SearchPath) > 0 {
		r.SearchPath = cfg.SearchPath
	}
	if cfg.TimeoutSeconds > 0 {
		r.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	cacheDir := cfg.CacheDir
	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		cacheDir = dir
	}

	var store dcache.Store
	cleanup := func() {}
	if cfg.CacheBackend == "sqlite" {
		s, err := dcache.OpenSQLiteStore(cmd.Context(), filepath.Join(cacheDir, "cache.db"))
		if err != nil {
			return nil, nil, nil, err
		}
		store = s
		cleanup = func() { s.Close() }
	} else {
		store = dcache.NewFileStore(cacheDir)
	}

	cc := &checks.Context{
		Runner: r,
		Cache:  store,
		Now:    time.Now,
		Stdout: os.Stdout,
	}
	return cc, cfg, cleanup, nil
}

// ttlParam resolves the --ttl flag in seconds, falling back to the config
// default when the flag was not given.
func ttlParam(cmd *cobra.Command, cfg *config.Config) time.Duration {
	secs, _ := cmd.Flags().GetInt("ttl")
	if f := cmd.Flags().Lookup("ttl"); f != nil && !f.Changed && cfg.DefaultTTLSeconds > 0 {
		secs = cfg.DefaultTTLSeconds
	}
	return time.Duration(secs) * time.Second
}

type runFunc func(context.Context, *checks.Context, checks.Op, checks.Params) error

// serviceOp adapts a service package's Run to a cobra RunE, decoding the
// operation once so the service switches over a plain enum.
func serviceOp(run runFunc, op checks.Op, metric string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc, cfg, cleanup, err := newContext(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p := checks.Params{Metric: metric, Args: args}
		if cmd.Flags().Lookup("ttl") != nil {
			p.TTL = ttlParam(cmd, cfg)
		}
		if op == checks.OpDiscovery && len(args) > 0 {
			p.Filter = args[0]
			p.Args = nil
		}
		return run(cmd.Context(), cc, op, p)
	}
}
