package flight_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/flight"
)

func TestDoSharesOneCall(t *testing.T) {
	var g flight.Group
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "menu", nil
	}

	results := make(chan any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := g.Do(context.Background(), "k", fn)
			require.NoError(t, err)
			results <- v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.Equal(t, "menu", <-results)
	require.Equal(t, "menu", <-results)
	require.Equal(t, int32(1), calls.Load())
}

func TestCanceledCallerDoesNotFailOthers(t *testing.T) {
	var g flight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
			return "orders", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := g.Do(firstCtx, "k", fn)
		first <- err
	}()
	<-started

	second := make(chan any, 1)
	go func() {
		v, err := g.Do(context.Background(), "k", fn)
		require.NoError(t, err)
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-first, context.Canceled)
	close(release)
	require.Equal(t, "orders", <-second)
}

func TestLastCallerLeavingCancelsCall(t *testing.T) {
	var g flight.Group
	stopped := make(chan error, 1)
	started := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Do(ctx, "k", fn)
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	select {
	case err := <-stopped:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("shared call kept running after every caller left")
	}

	// The key is usable again once the abandoned call is gone.
	v, err := g.Do(context.Background(), "k", func(context.Context) (any, error) { return "fresh", nil })
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
}
