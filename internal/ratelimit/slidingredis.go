package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Sliding is a sliding window limiter backed by Redis sorted sets. It lets
// several backend instances share one budget per caller.
type Sliding struct {
	Client *redis.Client
	Prefix string
	Window time.Duration
	Max    int
}

// Allow registers an event for key and reports whether it is within the limit.
func (l Sliding) Allow(ctx context.Context, key string) (Decision, error) {
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return Decision{Allowed: true, Limit: l.Max, Remaining: l.Max, Reset: time.Now().Add(l.Window)}, nil
	}

	now := time.Now()
	until := now.Add(l.Window)
	score := float64(now.UnixNano())
	cutoff := float64(now.Add(-l.Window).UnixNano())

	redisKey := l.Prefix + key
	member := fmt.Sprintf("%s:%s", key, uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Limit: l.Max, Reset: until}, err
	}

	current := int(countCmd.Val())
	remaining := l.Max - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: current <= l.Max, Limit: l.Max, Remaining: remaining, Reset: until}, nil
}

// Rate adapts a ulule limiter, e.g. one built by NewRate.
type Rate struct {
	L *limiter.Limiter
}

// NewRate builds a fixed window limiter from a formatted rate such as
// "120-M". A nil rdb keeps counters in process memory.
func NewRate(formatted string, rdb *redis.Client, prefix string) (Rate, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Rate{}, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	store := NewMemoryStore(prefix)
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return Rate{}, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	}
	return Rate{L: limiter.New(store, rate)}, nil
}

// Allow implements Limiter.
func (r Rate) Allow(ctx context.Context, key string) (Decision, error) {
	lc, err := r.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		Reset:     time.Unix(lc.Reset, 0),
	}, nil
}
