package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker state. Its numeric value is exported as a gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values pick the defaults noted per field.
type BreakerConfig struct {
	// Target labels logs and metrics; default "restaurant-api".
	Target string
	// MinRequests observed before the ratio is evaluated; default 1.
	MinRequests int
	// FailureRatio at or above which the breaker opens; default 0.5.
	FailureRatio float64
	// OpenFor is the cool-off before a probe is let through; default 30s.
	OpenFor time.Duration
	Logger  zerolog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

// Breaker is a failure-ratio circuit breaker guarding calls to the restaurant
// API. Every hook built from one apiclient.Client shares it.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	ok, fail int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Target == "" {
		cfg.Target = "restaurant-api"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg}
	cfg.Metrics.state(cfg.Target, Closed)
	return b
}

// Allow reports whether a request may be sent. After the cool-off an open
// breaker lets exactly one probe through and waits for its Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if success {
		b.ok++
	} else {
		b.fail++
	}
	total := b.ok + b.fail
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.fail)/float64(total) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open)
		return
	}
	// Halve the window so old successes cannot mask a fresh outage forever.
	if total >= 2*b.cfg.MinRequests {
		b.ok = (b.ok + 1) / 2
		b.fail = (b.fail + 1) / 2
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.ok, b.fail = 0, 0
	if next == Open {
		b.openedAt = b.cfg.Now()
	}
	b.cfg.Metrics.state(b.cfg.Target, next)
	b.cfg.Metrics.transition(b.cfg.Target, prev, next)

	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", b.cfg.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
