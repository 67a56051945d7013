package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/npmsentinel/mcp"
	petalotel "github.com/petal-labs/npmsentinel/otel"
	"github.com/petal-labs/npmsentinel/tool"
)

const serverInstructions = "Tools for inspecting npm packages: versions, dependencies, size, " +
	"vulnerabilities, downloads, quality scores, licenses, and repository stats. " +
	"Per-package tools accept a list of names and report each one separately."

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdin/stdout",
		Long: "Serve reads newline-delimited JSON-RPC requests from stdin and writes responses to stdout. " +
			"Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().Bool("no-health", false, "Disable scheduled upstream health probes")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	logger := a.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := petalotel.Setup(ctx, petalotel.SetupConfig{
		Endpoint:       a.cfg.Telemetry.OTLPEndpoint,
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: cmd.Root().Version,
	})
	if err != nil {
		return exitError(exitConfig, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	toolObserver, err := petalotel.NewToolObserver(
		otelapi.GetMeterProvider().Meter("npmsentinel/tool"),
		otelapi.GetTracerProvider().Tracer("npmsentinel/tool"),
	)
	if err != nil {
		return fmt.Errorf("initializing tool observability: %w", err)
	}
	tool.SetObserver(toolObserver)
	defer tool.SetObserver(nil)

	if noHealth, _ := cmd.Flags().GetBool("no-health"); !noHealth {
		if err := a.monitor.Start(ctx); err != nil {
			return fmt.Errorf("starting health monitor: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.monitor.Stop(stopCtx)
		}()
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		Registry:     a.registry,
		Name:         "npmsentinel",
		Version:      cmd.Root().Version,
		Instructions: serverInstructions,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	logger.Info("serving MCP over stdio",
		"tools", len(a.registry.Names()),
		"config", a.cfg.Path,
		"health_schedule", a.cfg.Health.Schedule,
	)
	err = server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil && !errors.Is(err, context.Canceled) {
		return exitError(exitRuntime, "server error: %v", err)
	}
	logger.Info("shutting down")
	return nil
}
