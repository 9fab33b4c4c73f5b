package main

import (
	"github.com/Nikjeremic/uptiomio/internal/audit"
	"github.com/Nikjeremic/uptiomio/internal/authorization"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/Nikjeremic/uptiomio/internal/invoice"
	"github.com/Nikjeremic/uptiomio/internal/migration"
	"github.com/Nikjeremic/uptiomio/internal/notification"
	"github.com/Nikjeremic/uptiomio/internal/observability"
	"github.com/Nikjeremic/uptiomio/internal/overdue"
	"github.com/Nikjeremic/uptiomio/internal/ratelimit"
	"github.com/Nikjeremic/uptiomio/internal/reminder"
	"github.com/Nikjeremic/uptiomio/internal/scheduler"
	"github.com/Nikjeremic/uptiomio/internal/sequence"
	"github.com/Nikjeremic/uptiomio/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uptiomio",
		Short: "Invoicing and payment reminder service",
		Long: `uptiomio issues invoices, records payments and reminds clients about
unpaid invoices on a schedule.

Running it without a subcommand starts the API together with the scheduler.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(
		newServeCmd(),
		newSchedulerCmd(),
		newOverdueCmd(),
		newRemindersCmd(),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}

// infraModules wires configuration, observability and storage.
func infraModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
	)
}

// domainModules wires everything the API and the jobs share.
func domainModules() fx.Option {
	return fx.Options(
		migration.Module,
		authorization.Module,
		audit.Module,
		ratelimit.Module,
		notification.Module,
		sequence.Module,
		invoice.Module,
		reminder.Module,
		overdue.Module,
		scheduler.Module,
	)
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
