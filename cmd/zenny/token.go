package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/identity"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long: `Issue a bearer token for the HTTP API signed with auth.jwt_secret.

Example:
  curl -H "Authorization: Bearer $(zenny token)" localhost:8080/api/batches`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireAuth(); err != nil {
				return err
			}

			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			issuer, err := identity.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
			if err != nil {
				return err
			}

			user := mustString(cmd, "user")
			if user == "" {
				user = cfg.User.ID
			}
			email := mustString(cmd, "email")
			if email == "" {
				email = cfg.User.Email
			}
			token, err := issuer.Issue(user, email)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id (default: user.id)")
	cmd.Flags().String("email", "", "email claim (default: user.email)")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	return cmd
}
