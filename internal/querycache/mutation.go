package querycache

import (
	"context"
	"sync"
)

// ErrorPolicy decides what Mutate does with a failed call.
type ErrorPolicy int

const (
	// CaptureError records the failure in State and returns a nil error.
	CaptureError ErrorPolicy = iota
	// ReturnError records the failure and also returns it.
	ReturnError
)

func (p ErrorPolicy) String() string {
	if p == ReturnError {
		return "return"
	}
	return "capture"
}

// MutationState is a snapshot of a mutation.
type MutationState[Out any] struct {
	Status    Status
	IsLoading bool
	IsSuccess bool
	IsError   bool
	Data      *Out
	Err       error
}

// MutationConfig describes a mutation. OnSuccess and OnError run after the
// state has been updated and before Mutate returns.
type MutationConfig[In, Out any] struct {
	Name        string
	Do          func(ctx context.Context, in In) (Out, error)
	OnSuccess   func(ctx context.Context, out Out)
	OnError     func(ctx context.Context, err error)
	Invalidates []Key
	Policy      ErrorPolicy
}

// Mutation runs a write and tracks its last outcome.
type Mutation[In, Out any] struct {
	client *Client
	cfg    MutationConfig[In, Out]

	mu    sync.Mutex
	state MutationState[Out]
}

// NewMutation returns an idle mutation.
func NewMutation[In, Out any](c *Client, cfg MutationConfig[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		client: c,
		cfg:    cfg,
		state:  MutationState[Out]{Status: StatusIdle},
	}
}

// State returns the current snapshot.
func (m *Mutation[In, Out]) State() MutationState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the mutation to idle.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	m.state = MutationState[Out]{Status: StatusIdle}
	m.mu.Unlock()
}

// Mutate performs one call. On success the configured keys are invalidated
// and the result returned. On failure the zero value is returned together
// with the error or nil, depending on the policy.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	m.mu.Lock()
	m.state = MutationState[Out]{Status: StatusLoading, IsLoading: true}
	m.mu.Unlock()

	out, err := m.cfg.Do(ctx, in)
	log := m.client.logger.With().Str("mutation", m.cfg.Name).Logger()
	if err != nil {
		m.mu.Lock()
		m.state = MutationState[Out]{Status: StatusError, IsError: true, Err: err}
		m.mu.Unlock()
		log.Debug().Err(err).Str("policy", m.cfg.Policy.String()).Msg("mutation_failed")
		if m.cfg.OnError != nil {
			m.cfg.OnError(ctx, err)
		}
		var zero Out
		if m.cfg.Policy == ReturnError {
			return zero, err
		}
		return zero, nil
	}

	m.mu.Lock()
	m.state = MutationState[Out]{Status: StatusSuccess, IsSuccess: true, Data: &out}
	m.mu.Unlock()
	for _, key := range m.cfg.Invalidates {
		if ierr := m.client.Invalidate(ctx, key); ierr != nil {
			log.Warn().Err(ierr).Str("key", string(key)).Msg("invalidate_failed")
		}
	}
	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx, out)
	}
	return out, nil
}
