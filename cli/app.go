package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/npmsentinel/config"
	"github.com/petal-labs/npmsentinel/health"
	"github.com/petal-labs/npmsentinel/npm"
	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

// AddGlobalFlags registers the flags every subcommand reads.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String("config", "", "Path to npmsentinel.yaml (default: ./npmsentinel.yaml, then ~/.npmsentinel/config.yaml)")
	root.PersistentFlags().BoolP("verbose", "", false, "Enable verbose/debug logging")
}

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	client   *upstream.Client
	monitor  *health.Monitor
	service  *npm.Service
	registry *tool.Registry
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicitPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(explicitPath)
	if err != nil {
		return config.Config{}, exitWith(exitConfig, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. It never writes to stdout, which
// belongs to the MCP stream.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cfg.Log, verbose, cmd.ErrOrStderr())

	upstreamCfg := cfg.UpstreamConfig()
	upstreamCfg.Logger = logger
	upstreamCfg.UserAgent = userAgent(cfg, cmd.Root().Version)
	client := upstream.New(upstreamCfg)

	monitor, err := health.NewMonitor(health.Config{
		Prober:   client,
		Schedule: cfg.Health.Schedule,
		Logger:   logger,
	})
	if err != nil {
		return nil, exitWith(exitConfig, err)
	}

	service := npm.NewService(npm.Config{
		Client:      client,
		Prober:      monitor,
		ItemTimeout: cfg.HTTP.ItemTimeout.Std(),
		Logger:      logger,
	})
	registry, err := tool.NewRegistry(service.Tools()...)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		monitor:  monitor,
		service:  service,
		registry: registry,
	}, nil
}

func userAgent(cfg config.Config, version string) string {
	if cfg.HTTP.UserAgent != "" {
		return cfg.HTTP.UserAgent
	}
	if version == "" {
		version = "dev"
	}
	return "npmsentinel/" + version
}
