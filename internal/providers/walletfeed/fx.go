package walletfeed

import (
	"context"
	"io"

	"github.com/smallbiznis/crmsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("walletfeed",
	fx.Provide(NewFactory),
)

// Factory builds a feed for one import run.
type Factory struct {
	cfg config.Config
	log *zap.Logger
}

func NewFactory(cfg config.Config, log *zap.Logger) *Factory {
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) File(path string) *CSVFeed {
	return NewCSVFile(path)
}

func (f *Factory) Reader(name string, r io.Reader) *CSVFeed {
	return NewCSVReader(name, r)
}

// Query connects to the analytics database. The caller closes the feed.
func (f *Factory) Query(ctx context.Context) (*PostgresFeed, error) {
	if err := f.cfg.RequireMetabase(); err != nil {
		return nil, err
	}
	return NewPostgresFeed(ctx, f.cfg.Metabase, f.log)
}
