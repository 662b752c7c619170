package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bistroline/gateway/internal/api"
	"github.com/bistroline/gateway/internal/config"
	"github.com/bistroline/gateway/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server and delivery workers",
	Long: `Start the gateway HTTP server and the webhook delivery worker pool.

The process:
- Loads configuration from environment variables
- Serves the management API and the event ingest endpoint
- Runs River workers that perform the signed webhook deliveries
- Shuts down gracefully on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  gateway serve

  # Start on a specific host and port
  gateway serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  gateway serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting gateway")

	tracingShutdown, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
	if err != nil {
		logger.Error().Err(err).Msg("tracing init failed")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracingShutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("tracing shutdown error")
			}
		}()
	}

	a, err := newApp(context.Background(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.recorder.Start()

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := a.riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("delivery workers failed to start: %w", err)
	}
	logger.Info().Int("workers", cfg.Jobs.WorkerCount).Msg("delivery workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := a.riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("delivery workers shutdown error")
		} else {
			logger.Info().Msg("delivery workers stopped")
		}
	}()

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Env:         cfg.Environment,
			Keys:        a.keys,
			Registry:    a.registry,
			Dispatcher:  a.dispatcher,
			AuditLogger: a.audit,
			JWT:         a.jwt,
			Pool:        a.pool,
			RateLimit:   cfg.RateLimit,
			Logger:      logger,
		}),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
