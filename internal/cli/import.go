package cli

import (
	"context"
	"strings"

	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/spf13/cobra"
)

type importOptions struct {
	File  string
	Query bool
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import external mappings into company records",
	}

	iopts := &importOptions{}
	wallets := &cobra.Command{
		Use:   "wallets",
		Short: "Link wallet addresses to companies by name",
		Long: `Link wallet addresses to companies grouped by company name.

Pairs come from a CSV file (wallet_address,company_name, header optional)
or from the analytics database.

Example:
  crmsync import wallets --file ./wallets.csv
  crmsync import wallets --query`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, iopts)
		},
	}
	wallets.Flags().StringVar(&iopts.File, "file", "", "path to a wallet mapping CSV")
	wallets.Flags().BoolVar(&iopts.Query, "query", false, "read the mapping from the analytics database")
	wallets.MarkFlagsMutuallyExclusive("file", "query")
	wallets.MarkFlagsOneRequired("file", "query")

	cmd.AddCommand(wallets)
	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, iopts *importOptions) error {
	path := strings.TrimSpace(iopts.File)
	if iopts.Query {
		cfg := opts.LoadConfig()
		if err := cfg.RequireMetabase(); err != nil {
			return WrapExitError(ExitConfigError, "wallet import", err)
		}
	} else if path == "" {
		return NewExitError(ExitConfigError, "--file or --query is required")
	}

	return execute(cmd, opts, "wallet import", func(ctx context.Context, rt *Runtime) (domain.SyncRunResult, error) {
		if !iopts.Query {
			return rt.Engine.ImportWallets(ctx, rt.Feeds.File(path))
		}
		feed, err := rt.Feeds.Query(ctx)
		if err != nil {
			return domain.SyncRunResult{}, err
		}
		defer feed.Close()
		return rt.Engine.ImportWallets(ctx, feed)
	})
}
