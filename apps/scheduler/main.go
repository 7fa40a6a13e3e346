package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmsync/internal/clock"
	"github.com/smallbiznis/crmsync/internal/company"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/migration"
	"github.com/smallbiznis/crmsync/internal/observability"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/providers/walletfeed"
	"github.com/smallbiznis/crmsync/internal/ratelimit"
	"github.com/smallbiznis/crmsync/internal/reconciliation"
	"github.com/smallbiznis/crmsync/internal/scheduler"
	"github.com/smallbiznis/crmsync/internal/server"
	"github.com/smallbiznis/crmsync/internal/usage"
	"github.com/smallbiznis/crmsync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		// Functional Domains
		orb.Module,
		company.Module,
		usage.Module,
		reconciliation.Module,
		walletfeed.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
