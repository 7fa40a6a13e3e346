package orb

import (
	"github.com/smallbiznis/crmsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provider.orb",
	fx.Provide(Provide),
)

type Params struct {
	fx.In

	Config   config.Config
	Throttle Throttle `optional:"true"`
	Log      *zap.Logger
}

func Provide(p Params) (*Client, error) {
	return NewClient(Config{
		APIKey:  p.Config.Withorb.APIKey,
		BaseURL: p.Config.Withorb.BaseURL,
		Timeout: p.Config.Withorb.Timeout,
	}, p.Throttle, p.Log)
}
