package cli

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/crmsync/internal/clock"
	"github.com/smallbiznis/crmsync/internal/company"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/metricspush"
	"github.com/smallbiznis/crmsync/internal/migration"
	"github.com/smallbiznis/crmsync/internal/observability"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/providers/walletfeed"
	"github.com/smallbiznis/crmsync/internal/ratelimit"
	"github.com/smallbiznis/crmsync/internal/reconciliation"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/usage"
	"github.com/smallbiznis/crmsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// WalletFeeds builds the feeds an import command reads from.
type WalletFeeds interface {
	File(path string) *walletfeed.CSVFeed
	Query(ctx context.Context) (*walletfeed.PostgresFeed, error)
}

// Runtime is the wired engine for one command invocation.
type Runtime struct {
	Engine   domain.Engine
	Feeds    WalletFeeds
	Pusher   metricspush.Pusher
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// Bootstrap wires a Runtime and returns a function that tears it down.
type Bootstrap func(ctx context.Context) (*Runtime, func(context.Context) error, error)

type runtimeParams struct {
	fx.In

	Engine   domain.Engine
	Feeds    *walletfeed.Factory
	Pusher   metricspush.Pusher `optional:"true"`
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// FxBootstrap starts the same module graph as the scheduler process minus
// the scheduler loops and the HTTP server.
func FxBootstrap(ctx context.Context) (*Runtime, func(context.Context) error, error) {
	var rt Runtime
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(newIDNode),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		orb.Module,
		company.Module,
		usage.Module,
		reconciliation.Module,
		walletfeed.Module,
		metricspush.Module,
		fx.Invoke(func(p runtimeParams) {
			rt = Runtime{
				Engine:   p.Engine,
				Feeds:    p.Feeds,
				Pusher:   p.Pusher,
				Gatherer: p.Gatherer,
				Log:      p.Log.Named("cli"),
			}
		}),
	)
	if err := app.Err(); err != nil {
		return nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, nil, err
	}
	return &rt, app.Stop, nil
}

func newIDNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
