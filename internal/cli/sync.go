package cli

import (
	"context"
	"strings"

	"github.com/smallbiznis/crmsync/internal/metricspush"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFunc func(ctx context.Context, rt *Runtime) (domain.SyncRunResult, error)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation against the billing provider",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "full",
		Short: "Reconcile every billing customer and refresh usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, "full sync", func(ctx context.Context, rt *Runtime) (domain.SyncRunResult, error) {
				return rt.Engine.RunFullSync(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "usage",
		Short: "Refresh usage for companies already linked to a billing customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, "usage sync", func(ctx context.Context, rt *Runtime) (domain.SyncRunResult, error) {
				return rt.Engine.RunUsageOnlySync(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "customer <billing-customer-id>",
		Short: "Reconcile a single billing customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID := strings.TrimSpace(args[0])
			if externalID == "" {
				return NewExitError(ExitConfigError, "customer id is required")
			}
			return runSync(cmd, opts, "customer sync", func(ctx context.Context, rt *Runtime) (domain.SyncRunResult, error) {
				return rt.Engine.SyncCustomer(ctx, externalID)
			})
		},
	})

	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, label string, fn runFunc) error {
	cfg := opts.LoadConfig()
	if err := cfg.RequireWithorb(); err != nil {
		return WrapExitError(ExitConfigError, label, err)
	}
	return execute(cmd, opts, label, fn)
}

// execute wires the runtime, runs fn once and pushes metrics before
// tearing down.
func execute(cmd *cobra.Command, opts *RootOptions, label string, fn runFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, stop, err := opts.Bootstrap(ctx)
	if err != nil {
		return runError("failed to start", err)
	}
	defer func() {
		if stopErr := stop(context.WithoutCancel(ctx)); stopErr != nil && rt.Log != nil {
			rt.Log.Warn("cli.shutdown.failed", zap.Error(stopErr))
		}
	}()

	result, runErr := fn(ctx, rt)
	metricspush.Flush(ctx, rt.Pusher, rt.Gatherer, rt.Log)

	if runErr != nil {
		return runError(label+" failed", runErr)
	}
	return writeResult(opts.Out, opts.Format, result)
}
