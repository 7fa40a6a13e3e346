package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/spf13/cobra"
)

var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the hooks tests swap out.
type RootOptions struct {
	Format string

	LoadConfig func() config.Config
	Bootstrap  Bootstrap
	Out        io.Writer
}

func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.Bootstrap == nil {
		opts.Bootstrap = FxBootstrap
	}

	cmd := &cobra.Command{
		Use:   "crmsync",
		Short: "Reconcile billing customers and usage into company records",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitConfigError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Out == nil {
				opts.Out = cmd.OutOrStdout()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newImportCommand(opts))

	return cmd
}
