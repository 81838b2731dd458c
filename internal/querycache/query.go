package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Result is a snapshot of a query. Data is nil until a fetch succeeds and
// again whenever the latest attempt failed.
type Result[T any] struct {
	Data      *T
	Status    Status
	IsLoading bool
	Err       error
	UpdatedAt time.Time
}

// Query binds a key to a fetch function. Run and Start never return the
// fetch error; it is kept in the Result so callers render "no data".
type Query[T any] struct {
	client *Client
	key    Key
	fetch  func(context.Context) (T, error)

	mu     sync.Mutex
	result Result[T]
}

// NewQuery returns an idle query.
func NewQuery[T any](c *Client, key Key, fetch func(context.Context) (T, error)) *Query[T] {
	return &Query[T]{
		client: c,
		key:    key,
		fetch:  fetch,
		result: Result[T]{Status: StatusIdle},
	}
}

// Key returns the cache key.
func (q *Query[T]) Key() Key { return q.key }

// Result returns the current snapshot.
func (q *Query[T]) Result() Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Run fetches (or reads the fresh cache entry) and blocks until done.
func (q *Query[T]) Run(ctx context.Context) Result[T] {
	q.begin()
	return q.finish(ctx)
}

// Start marks the query loading and fetches in the background. The channel
// receives the final Result and is then closed.
func (q *Query[T]) Start(ctx context.Context) <-chan Result[T] {
	q.begin()
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		out <- q.finish(ctx)
	}()
	return out
}

func (q *Query[T]) begin() {
	q.mu.Lock()
	q.result.IsLoading = true
	q.result.Status = StatusLoading
	q.mu.Unlock()
}

func (q *Query[T]) finish(ctx context.Context) Result[T] {
	raw, at, err := q.client.fetchRaw(ctx, q.key, func(ctx context.Context) (any, error) {
		return q.fetch(ctx)
	})
	var data *T
	if err == nil {
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr != nil {
			err = fmt.Errorf("querycache: decode %s: %w", q.key, uerr)
		} else {
			data = &v
		}
	}

	res := Result[T]{Data: data, Status: StatusSuccess, UpdatedAt: at}
	if err != nil {
		res = Result[T]{Status: StatusError, Err: err}
		q.client.logger.Debug().Err(err).Str("key", string(q.key)).Msg("query_failed")
	}
	q.mu.Lock()
	q.result = res
	q.mu.Unlock()
	return res
}
