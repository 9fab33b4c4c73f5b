package main

import (
	"context"
	"fmt"

	"github.com/Nikjeremic/uptiomio/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				log  *zap.Logger
			)
			app := fx.New(
				infraModules(),
				fx.Populate(&conn, &log),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), fx.DefaultTimeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			if err := migration.Apply(conn); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("schema migrations applied", zap.String("dialect", conn.Dialector.Name()))
			return nil
		},
	}
}
