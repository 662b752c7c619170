package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bistroline/gateway/internal/config"
	"github.com/spf13/cobra"
)

// workerCmd runs the delivery workers without the HTTP surface, for
// deployments that scale delivery throughput separately from the API.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the webhook delivery workers only",
	Long: `Run the webhook delivery worker pool without the HTTP server.

Useful when delivery throughput scales separately from the API: any number
of worker processes can share the queue, and River leases each job to
exactly one of them.

Examples:
  gateway worker
  gateway worker --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func runWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting delivery workers")

	a, err := newApp(context.Background(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.close()

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := a.riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("delivery workers failed to start: %w", err)
	}
	logger.Info().Int("workers", cfg.Jobs.WorkerCount).Msg("delivery workers started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.riverClient.Stop(stopCtx); err != nil {
		return fmt.Errorf("delivery workers shutdown: %w", err)
	}
	logger.Info().Msg("delivery workers stopped")
	return nil
}
