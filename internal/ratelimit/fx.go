package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/providers/orb"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const orbThrottleKey = "crmsync:throttle:withorb"

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewLocker,
		fx.Annotate(NewOrbThrottle, fx.As(new(orb.Throttle))),
	),
)

// NewRedisClient returns nil when no redis address is configured; callers
// treat a nil client as "coordination disabled".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func NewOrbThrottle(cfg config.Config, client *redis.Client, log *zap.Logger) orb.Throttle {
	local := NewFixedDelay(cfg.Withorb.RequestDelay)
	if !cfg.Sync.SharedThrottle || client == nil {
		return local
	}
	return NewSharedThrottle(NewTokenBucket(client), orbThrottleKey, cfg.Sync.SharedThrottleRate, local, log)
}
