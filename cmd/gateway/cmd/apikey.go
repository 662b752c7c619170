package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bistroline/gateway/internal/config"
	"github.com/bistroline/gateway/internal/domain/apikeys"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	apiKeyOrg string
	apiKeyEnv string
)

// apiKeyCmd is the api-key command group
var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage partner API keys",
	Long: `Manage API keys for the event ingest endpoint.

The plaintext secret is displayed once at creation and cannot be
retrieved later.

Examples:
  # Create a production key
  gateway api-key create pos-terminal --org 7f0b... --environment production

  # List an organization's keys
  gateway api-key list --org 7f0b...

  # Revoke a key
  gateway api-key revoke <id>`,
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := cliApp()
		if err != nil {
			return err
		}
		defer cleanup()

		orgID, err := uuid.Parse(apiKeyOrg)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}

		key, secret, err := a.keys.Issue(ctx, apikeys.IssueParams{
			OrgID:       orgID,
			Name:        args[0],
			Environment: apikeys.Environment(strings.ToUpper(apiKeyEnv)),
		})
		if err != nil {
			return fmt.Errorf("issue key: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:          %s\n", key.ID)
		fmt.Fprintf(out, "Prefix:      %s\n", key.Prefix)
		fmt.Fprintf(out, "Environment: %s\n", key.Environment)
		fmt.Fprintf(out, "Secret:      %s\n", secret)
		fmt.Fprintln(out, "\nStore the secret now; it cannot be shown again.")
		return nil
	},
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := cliApp()
		if err != nil {
			return err
		}
		defer cleanup()

		orgID, err := uuid.Parse(apiKeyOrg)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}

		keys, err := a.keys.List(ctx, orgID)
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPREFIX\tNAME\tENV\tSTATUS\tISSUED\tUSAGE")
		for _, key := range keys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				key.ID, key.Prefix, key.Name, key.Environment, key.Status,
				key.IssuedAt.Format(time.RFC3339), key.UsageCount)
		}
		return w.Flush()
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := cliApp()
		if err != nil {
			return err
		}
		defer cleanup()

		keyID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid key id: %w", err)
		}
		if err := a.keys.Revoke(ctx, keyID); err != nil {
			return fmt.Errorf("revoke key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key %s revoked\n", keyID)
		return nil
	},
}

// cliApp wires a jobless app for one-shot commands.
func cliApp() (*app, context.Context, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	cleanup := func() {
		a.close()
		cancel()
	}
	return a, ctx, cleanup, nil
}

func init() {
	apiKeyCmd.PersistentFlags().StringVar(&apiKeyOrg, "org", "", "organization id (uuid)")
	apiKeyCreateCmd.Flags().StringVar(&apiKeyEnv, "environment", "sandbox", "key environment (production, sandbox)")

	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	apiKeyCmd.AddCommand(apiKeyListCmd)
	apiKeyCmd.AddCommand(apiKeyRevokeCmd)
}
