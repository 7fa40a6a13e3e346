package ratelimit

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	errEmptyLockKey      = errors.New("lock key is empty")
	errLockTTL           = errors.New("lock ttl must be positive")
)

// Deletes the key only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out run leases in redis. A lease ends when its holder
// releases it or its ttl lapses, so a crashed process never blocks the next
// run for longer than one ttl.
type Locker struct {
	client *redis.Client
	host   string
}

// NewLocker returns nil for a nil client; callers treat that as "no lock".
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &Locker{client: client, host: host}
}

// TryLock takes key for ttl. ok is false when another holder has it.
// Tokens are "<host>/<uuid>" so Holder can name the process in logs.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if err := l.check(key); err != nil {
		return "", false, err
	}
	if ttl <= 0 {
		return "", false, errLockTTL
	}

	token = l.host + "/" + uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release is a no-op for an empty token or a lease already taken over.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if token == "" || l.check(key) != nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

// Holder returns the host currently holding key, or "" when it is free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	if err := l.check(key); err != nil {
		return "", err
	}
	token, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	host, _, _ := strings.Cut(token, "/")
	return host, nil
}

func (l *Locker) check(key string) error {
	if l == nil || l.client == nil {
		return ErrLockNotConfigured
	}
	if key == "" {
		return errEmptyLockKey
	}
	return nil
}
