// Package lock provides a Redis mutex. CLI processes sharing a Redis query
// cache take it so each key is refreshed once.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when the lock has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

// release deletes the key only if it still holds our token, so a holder
// whose TTL lapsed never frees somebody else's lock.
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a SET NX based lock.
type Redis struct {
	Client *redis.Client
	Prefix string
	// Retry is the polling interval while the lock is held elsewhere.
	Retry time.Duration
}

// WithLock runs fn while holding name. It waits until the lock is free or ctx
// is done. The lock is released when fn returns, even with an error.
func (l Redis) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return ErrNotConfigured
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.Retry
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	key := l.Prefix + name
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	defer func() {
		_ = release.Run(context.WithoutCancel(ctx), l.Client, []string{key}, token).Err()
	}()
	return fn(ctx)
}
