// Package querycache is the client-side query cache the restaurant hooks run
// against. A Client is created once at the composition root and passed to
// every hook; there is no package-level cache.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/flight"
	"github.com/noah-isme/restaurant-admin/internal/obs"
)

// Key names a logical resource, e.g. "fetchMyRestaurant".
type Key string

// Status is the lifecycle state shared by queries and mutations.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Options configures a Client.
type Options struct {
	Store Store
	// StaleTime is how long fetched data is served without refetching. Zero
	// means every run fetches.
	StaleTime time.Duration
	Logger    zerolog.Logger
	Metrics   *obs.APIMetrics
	Now       func() time.Time
	// Lock, when set, also serializes refreshes of a key across processes
	// sharing the Store. LockTTL bounds how long a crashed holder blocks
	// others and defaults to 10s.
	Lock    Locker
	LockTTL time.Duration
	// Scope, when set, labels the signed-in identity. Entries, locks and
	// shared fetches are keyed by it so a Store shared between users never
	// serves one user's data to another.
	Scope func(context.Context) (string, error)
}

// Locker runs fn while holding a named lock.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Client owns the cache entries for one application context.
type Client struct {
	store     Store
	staleTime time.Duration
	logger    zerolog.Logger
	metrics   *obs.APIMetrics
	now       func() time.Time
	flights   flight.Group
	lock      Locker
	lockTTL   time.Duration
	scope     func(context.Context) (string, error)
}

// New returns a Client. A nil Store defaults to a fresh MemoryStore.
func New(opts Options) *Client {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Client{
		store:     store,
		staleTime: opts.StaleTime,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       now,
		lock:      opts.Lock,
		lockTTL:   lockTTL,
		scope:     opts.Scope,
	}
}

// storeKey is key as stored, prefixed with the caller's scope.
func (c *Client) storeKey(ctx context.Context, key Key) (Key, error) {
	if c.scope == nil {
		return key, nil
	}
	scope, err := c.scope(ctx)
	if err != nil {
		return "", fmt.Errorf("querycache: scope %s: %w", key, err)
	}
	if scope == "" {
		return key, nil
	}
	return Key(scope + ":" + string(key)), nil
}

// Invalidate marks key stale so its next read fetches again.
func (c *Client) Invalidate(ctx context.Context, key Key) error {
	sk, err := c.storeKey(ctx, key)
	if err != nil {
		return err
	}
	e, ok, err := c.store.Load(ctx, sk)
	if err != nil {
		return fmt.Errorf("querycache: load %s: %w", key, err)
	}
	if !ok || e.Invalidated {
		return nil
	}
	e.Invalidated = true
	if err := c.store.Save(ctx, sk, e); err != nil {
		return fmt.Errorf("querycache: invalidate %s: %w", key, err)
	}
	c.logger.Debug().Str("key", string(key)).Msg("query_invalidated")
	return nil
}

// Remove drops key entirely.
func (c *Client) Remove(ctx context.Context, key Key) error {
	sk, err := c.storeKey(ctx, key)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, sk)
}

// Peek returns the cached entry for key without fetching.
func (c *Client) Peek(ctx context.Context, key Key) (Entry, bool, error) {
	sk, err := c.storeKey(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	return c.store.Load(ctx, sk)
}

// SetData stores v as fresh data for key, as if it had just been fetched.
func (c *Client) SetData(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("querycache: encode %s: %w", key, err)
	}
	sk, err := c.storeKey(ctx, key)
	if err != nil {
		return err
	}
	return c.store.Save(ctx, sk, Entry{Data: data, UpdatedAt: c.now()})
}

type fetched struct {
	data json.RawMessage
	at   time.Time
}

// fresh returns the stored entry for key when it may be served without a
// request. Nothing is fresh when StaleTime is zero.
func (c *Client) fresh(ctx context.Context, key Key) (Entry, bool) {
	if c.staleTime <= 0 {
		return Entry{}, false
	}
	e, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("query_cache_load_failed")
		return Entry{}, false
	}
	if !ok || e.Invalidated || c.now().Sub(e.UpdatedAt) >= c.staleTime {
		return Entry{}, false
	}
	return e, true
}

// fetchRaw serves key from the store when fresh, otherwise runs fetch once
// per key no matter how many callers are waiting, and stores the result.
func (c *Client) fetchRaw(ctx context.Context, key Key, fetch func(context.Context) (any, error)) (json.RawMessage, time.Time, error) {
	encode := func(ctx context.Context) (fetched, error) {
		v, err := fetch(ctx)
		if err != nil {
			return fetched{}, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fetched{}, fmt.Errorf("querycache: encode %s: %w", key, err)
		}
		return fetched{data: data, at: c.now()}, nil
	}

	sk, err := c.storeKey(ctx, key)
	if err != nil {
		// Without an identity nothing may be read from or written to the
		// store; the fetch reports the underlying failure.
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("query_cache_bypassed")
		f, err := encode(ctx)
		return f.data, f.at, err
	}

	if e, ok := c.fresh(ctx, sk); ok {
		c.metrics.ObserveCacheLookup(string(key), "hit")
		return e.Data, e.UpdatedAt, nil
	}
	c.metrics.ObserveCacheLookup(string(key), "miss")

	load := func(ctx context.Context) (fetched, error) {
		f, err := encode(ctx)
		if err != nil {
			return fetched{}, err
		}
		if err := c.store.Save(ctx, sk, Entry{Data: f.data, UpdatedAt: f.at}); err != nil {
			c.logger.Warn().Err(err).Str("key", string(key)).Msg("query_cache_save_failed")
		}
		return f, nil
	}
	v, err := c.flights.Do(ctx, string(sk), func(ctx context.Context) (any, error) {
		if c.lock == nil {
			return load(ctx)
		}
		var (
			out  fetched
			held bool
		)
		err := c.lock.WithLock(ctx, "querycache:lock:"+string(sk), c.lockTTL, func(ctx context.Context) error {
			held = true
			// Another process may have refreshed the key while we waited.
			if e, ok := c.fresh(ctx, sk); ok {
				out = fetched{data: e.Data, at: e.UpdatedAt}
				return nil
			}
			var err error
			out, err = load(ctx)
			return err
		})
		if err != nil && !held && ctx.Err() == nil {
			// The lock store is down; the API may not be.
			c.logger.Warn().Err(err).Str("key", string(key)).Msg("query_cache_lock_failed")
			return load(ctx)
		}
		return out, err
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	f := v.(fetched)
	return f.data, f.at, nil
}
