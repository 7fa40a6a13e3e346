package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
)

// Flush pushes once and only logs failures; the run result stands either way.
func Flush(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) {
	if pusher == nil {
		return
	}
	if err := pusher.Push(ctx, gatherer); err != nil && log != nil {
		log.Warn("metrics.push.failed", zap.Error(err))
	}
}
