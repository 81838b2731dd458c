package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/restaurant-admin/internal/resilience"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreakerTransitions(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	metrics := resilience.NewMetrics(prometheus.NewRegistry())
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "test-api",
		MinRequests: 2,
		OpenFor:     time.Minute,
		Metrics:     metrics,
		Now:         clk.Now,
	})
	ctx := context.Background()
	gauge := func() float64 { return testutil.ToFloat64(metrics.State.WithLabelValues("test-api")) }

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Closed, b.State(), "below MinRequests")
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)

	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))
	require.Equal(t, 1.0, gauge())

	clk.Advance(time.Minute)
	require.True(t, b.Allow(ctx), "one probe after the cool-off")
	require.Equal(t, resilience.HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe in flight")
	require.Equal(t, 2.0, gauge())

	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))
	require.Equal(t, 0.0, gauge())

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Opened.WithLabelValues("test-api")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("test-api", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("test-api", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues("test-api", "half_open", "closed")))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	b := resilience.NewBreaker(resilience.BreakerConfig{OpenFor: time.Second, Now: clk.Now})
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	clk.Advance(time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx), "cool-off restarts")
}

func TestNewMetricsReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := resilience.NewMetrics(reg)
	b := resilience.NewMetrics(reg)
	require.Same(t, a.State, b.State)
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
