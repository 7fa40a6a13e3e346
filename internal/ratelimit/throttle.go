package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FixedDelay enforces a minimum gap between consecutive calls within one
// process.
type FixedDelay struct {
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	if f == nil || f.delay <= 0 {
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.last.IsZero() {
		if wait := f.delay - time.Since(f.last); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	f.last = time.Now()
	return nil
}

// SharedThrottle spaces calls across every process that talks to the same
// provider account. It falls back to the local delay when redis errors.
type SharedThrottle struct {
	bucket   *TokenBucket
	key      string
	rate     float64
	fallback *FixedDelay
	log      *zap.Logger
}

func NewSharedThrottle(bucket *TokenBucket, key string, rate float64, fallback *FixedDelay, log *zap.Logger) *SharedThrottle {
	if log == nil {
		log = zap.NewNop()
	}
	return &SharedThrottle{
		bucket:   bucket,
		key:      key,
		rate:     rate,
		fallback: fallback,
		log:      log.Named("ratelimit.shared"),
	}
}

func (s *SharedThrottle) Wait(ctx context.Context) error {
	for {
		res, err := s.bucket.Allow(ctx, s.key, s.rate, 1)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, ErrLimiterNotConfigured) {
				s.log.Warn("ratelimit.shared.fallback", zap.Error(err))
			}
			return s.fallback.Wait(ctx)
		}
		if res.Allowed {
			return nil
		}
		wait := res.RetryAfter
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
