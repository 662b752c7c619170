package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "gateway",
		Short: "Bistroline integration gateway",
		Long: `The Bistroline integration gateway manages partner credentials and
outbound webhooks for the platform.

It provides:
- API key issuance, verification, and revocation
- Webhook subscription registration with encrypted signing secrets
- Signed, at-least-once event delivery with bounded retries
- A management API for operators and an ingest endpoint for services`,
		// Running the binary with no subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(apiKeyCmd)
	rootCmd.AddCommand(adminTokenCmd)
	rootCmd.AddCommand(versionCmd)
}
