// Package flight de-duplicates concurrent calls per key. The shared call
// runs under its own context, canceled once every caller waiting on it has
// given up, so one caller's cancellation never fails the others.
package flight

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group is safe for concurrent use. The zero value is ready.
type Group struct {
	sf singleflight.Group

	mu    sync.Mutex
	seq   uint64
	calls map[string]*call
}

type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	id      string
	waiters int
}

// Do runs fn once per key for all callers that overlap. fn receives a
// context carrying the first caller's values. Do returns early with
// ctx.Err() when the caller's ctx is done.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := g.join(ctx, key)
	defer g.leave(c)

	ch := g.sf.DoChan(c.id, func() (any, error) {
		defer g.done(key, c)
		return fn(c.ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (g *Group) join(ctx context.Context, key string) *call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]*call)
	}
	c, ok := g.calls[key]
	// A call abandoned by all of its callers may still be unwinding; start a
	// new one instead of inheriting its cancellation.
	if !ok || c.ctx.Err() != nil {
		g.seq++
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{ctx: cctx, cancel: cancel, id: key + "#" + strconv.FormatUint(g.seq, 10)}
		g.calls[key] = c
	}
	c.waiters++
	return c
}

func (g *Group) leave(c *call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters == 0 {
		c.cancel()
	}
}

func (g *Group) done(key string, c *call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}
