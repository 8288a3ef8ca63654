package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "bgv/internal/jwt_token"
	"bgv/internal/platform/config"
	id "bgv/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		actor  string
		tenant string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			actorID := id.NewUserID()
			if actor != "" {
				if actorID, err = id.ParseUserID(actor); err != nil {
					return fmt.Errorf("invalid --actor: %w", err)
				}
			}
			var tenantID id.TenantID
			if tenant != "" {
				if tenantID, err = id.ParseTenantID(tenant); err != nil {
					return fmt.Errorf("invalid --tenant: %w", err)
				}
			}
			jwtSvc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
			token, err := jwtSvc.GenerateAccessToken(actorID, tenantID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Actor user ID (random when omitted)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Restrict the token to one tenant")
	cmd.Flags().StringVar(&role, "role", jwttoken.RoleVerifier, "Actor role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
