package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/overdue"
	"github.com/Nikjeremic/uptiomio/internal/reminder"
	"github.com/Nikjeremic/uptiomio/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newOverdueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Overdue invoice digests",
	}

	var timeout time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the overdue aggregation once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sched *scheduler.Scheduler
				agg   *overdue.Aggregator
			)
			return runOnce(cmd, timeout, fx.Populate(&sched, &agg), func(ctx context.Context) (any, error) {
				var summary overdue.Summary
				err := sched.Exclusive(ctx, overdue.JobName, func(ctx context.Context) error {
					var err error
					summary, err = agg.Run(ctx, overdue.TriggerManual)
					return err
				})
				return summary, err
			})
		},
	}
	run.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "abort the run after this long")
	cmd.AddCommand(run)
	return cmd
}

func newRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Scheduled payment reminders",
	}

	var timeout time.Duration
	tick := &cobra.Command{
		Use:   "tick",
		Short: "Evaluate every invoice once and send the reminders that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sched  *scheduler.Scheduler
				runner *reminder.Runner
			)
			return runOnce(cmd, timeout, fx.Populate(&sched, &runner), func(ctx context.Context) (any, error) {
				var result reminder.TickResult
				err := sched.Exclusive(ctx, reminder.JobName, func(ctx context.Context) error {
					var err error
					result, err = runner.RunTick(ctx)
					return err
				})
				return result, err
			})
		},
	}
	tick.Flags().DurationVar(&timeout, "timeout", 4*time.Minute, "abort the tick after this long")
	cmd.AddCommand(tick)
	return cmd
}

// runOnce starts the app without the scheduler loops, runs fn and prints
// its result as JSON.
func runOnce(cmd *cobra.Command, timeout time.Duration, populate fx.Option, fn func(ctx context.Context) (any, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := fx.New(
		infraModules(),
		domainModules(),
		populate,
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()

	result, err := fn(runCtx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
