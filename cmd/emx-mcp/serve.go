package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/emx-mail/mcp/pkgs/config"
	"github.com/emx-mail/mcp/pkgs/instrumentation"
	"github.com/emx-mail/mcp/pkgs/logging"
	"github.com/emx-mail/mcp/pkgs/tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

const serverInstructions = `Tools for one mail account. fetch_emails and its variants return the newest
matching messages first and never mark them as read. send_email submits a
plain-text message and reports {"success": false} when the server refuses it.`

type serveOptions struct {
	transport      string
	httpAddr       string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the mail tools.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on the configured port

With the streamable-http transport, Prometheus metrics are served on a
dedicated address (--metrics-addr).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), a.logger, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP server address (default: :<port> from config)")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated port (streamable-http only)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", DefaultMetricsAddr, "Metrics server address")

	return cmd
}

func newMCPServer(sc *tools.ServerContext) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("emx-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions),
	)
	tools.RegisterTools(s, sc)
	return s
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts serveOptions) error {
	switch opts.transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	metrics := provider.Metrics()
	sc := &tools.ServerContext{
		Fetcher:      newFetcher(cfg, logger, metrics),
		Sender:       newSender(cfg, logger),
		DefaultLimit: cfg.Fetch.Limit,
		Timeout:      cfg.Timeout,
		Metrics:      metrics,
		Logger:       logger,
	}
	mcpSrv := newMCPServer(sc)

	if opts.transport == transportStdio {
		return runStdioServer(mcpSrv)
	}

	if opts.metricsEnabled && provider.PrometheusHandler() != nil {
		ms, err := startMetricsServer(opts.metricsAddr, provider.PrometheusHandler(), logger)
		if err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
			defer cancel()
			if err := ms.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	addr := opts.httpAddr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(cfg.Port))
	}
	return runStreamableHTTPServer(ctx, mcpSrv, addr, logger)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, addr string, logger *slog.Logger) error {
	httpSrv := mcpserver.NewStreamableHTTPServer(mcpSrv)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- httpSrv.Start(addr)
	}()
	logger.Info("MCP server listening",
		slog.String("transport", transportStreamableHTTP),
		slog.String("addr", addr),
	)

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}
