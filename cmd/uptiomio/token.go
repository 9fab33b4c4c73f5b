package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/auth"
	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/Nikjeremic/uptiomio/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newTokenCmd() *cobra.Command {
	var (
		id    string
		email string
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		Long: `Mint a bearer token signed with JWT_SECRET.

Operators use it to call the admin API; in development it stands in for the
external identity provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := authdomain.ParseRole(role)
			if err != nil {
				return fmt.Errorf("--role: %w", err)
			}
			if strings.TrimSpace(id) == "" {
				id = strings.TrimSpace(email)
			}

			var (
				cfg    config.Config
				tokens authdomain.TokenService
			)
			app := fx.New(
				config.Module,
				observability.Module,
				clock.Module,
				auth.Module,
				fx.Populate(&cfg, &tokens),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set so the API can verify the token")
			}

			token, err := tokens.Issue(authdomain.Actor{
				ID:    id,
				Email: strings.TrimSpace(email),
				Role:  parsedRole,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "actor id (defaults to the email)")
	cmd.Flags().StringVar(&email, "email", "", "actor email")
	cmd.Flags().StringVar(&role, "role", string(authdomain.RoleAdmin), "actor role: user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
