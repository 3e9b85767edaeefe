package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/emx-mail/mcp/pkgs/logging"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP servers
	// and the telemetry exporters.
	DefaultShutdownTimeout = 30 * time.Second
)

// metricsServer serves Prometheus metrics on a dedicated port, apart from
// the MCP traffic.
type metricsServer struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// startMetricsServer binds addr and serves handler on /metrics in the
// background. Bind errors are returned immediately.
func startMetricsServer(addr string, handler http.Handler, logger *slog.Logger) (*metricsServer, error) {
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	if handler == nil {
		return nil, errors.New("metrics handler is required")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &metricsServer{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	logger.Info("metrics server started", slog.String("addr", s.Addr()))
	return s, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the metrics server.
func (s *metricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
