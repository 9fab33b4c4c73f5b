package main

import (
	"github.com/Nikjeremic/uptiomio/internal/auth"
	"github.com/Nikjeremic/uptiomio/internal/scheduler"
	"github.com/Nikjeremic/uptiomio/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the reminder and overdue jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infraModules(),
				domainModules(),
				scheduler.Background,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func runServe() error {
	app := fx.New(
		infraModules(),
		domainModules(),
		auth.Module,
		server.Module,
		scheduler.Background,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
