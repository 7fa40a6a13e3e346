package usage

import (
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	usagedomain "github.com/smallbiznis/crmsync/internal/usage/domain"
	"github.com/smallbiznis/crmsync/internal/usage/repository"
	"github.com/smallbiznis/crmsync/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(
		repository.Provide,
		fx.Annotate(func(c *orb.Client) *orb.Client { return c }, fx.As(new(usagedomain.Source))),
		fx.Annotate(service.NewService, fx.As(new(usagedomain.Aggregator))),
	),
)
