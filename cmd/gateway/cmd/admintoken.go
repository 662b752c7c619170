package cmd

import (
	"fmt"
	"time"

	"github.com/bistroline/gateway/internal/auth"
	"github.com/bistroline/gateway/internal/secrets"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	adminTokenOrg     string
	adminTokenSubject string
	adminTokenRole    string
	adminTokenTTL     time.Duration
)

// adminTokenCmd mints short-lived JWTs for the management API. Intended for
// operators and CI; the key material comes from the same master secret the
// server derives its verification key from.
var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Generate an admin JWT for the management API",
	Long: `Generate an admin JWT for the management API.

The token is signed with a key derived from GATEWAY_MASTER_SECRET, so any
gateway sharing that secret accepts it.

Examples:
  gateway admin-token --org 7f0b... --subject ops@bistroline.dev
  gateway admin-token --org 7f0b... --subject ci --ttl 15m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		orgID, err := uuid.Parse(adminTokenOrg)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}
		if adminTokenSubject == "" {
			return fmt.Errorf("--subject is required")
		}

		jwtKey, err := secrets.DeriveAdminJWTKey([]byte(cfg.Auth.MasterSecret))
		if err != nil {
			return fmt.Errorf("derive admin jwt key: %w", err)
		}

		ttl := adminTokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.AdminJWTExpiry
		}
		manager := auth.NewJWTManager(jwtKey, ttl, cfg.Auth.Issuer)
		token, err := manager.Generate(adminTokenSubject, orgID, adminTokenRole)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	adminTokenCmd.Flags().StringVar(&adminTokenOrg, "org", "", "organization id (uuid)")
	adminTokenCmd.Flags().StringVar(&adminTokenSubject, "subject", "", "token subject (operator identity)")
	adminTokenCmd.Flags().StringVar(&adminTokenRole, "role", "admin", "token role")
	adminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", 0, "token lifetime (default: ADMIN_JWT_EXPIRY)")
}
