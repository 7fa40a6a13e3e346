package reconciliation

import (
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation",
	fx.Provide(
		fx.Annotate(func(c *orb.Client) *orb.Client { return c }, fx.As(new(domain.BillingProvider))),
		fx.Annotate(service.NewLogObserver, fx.As(new(domain.Observer)), fx.ResultTags(`group:"reconciliation.observers"`)),
		service.NewService,
		func(s *service.Service) domain.Engine { return s },
	),
)
