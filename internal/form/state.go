package form

import (
	"errors"
	"sync"

	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

// State owns a restaurant.Form and its validation errors. It implements
// Context.
type State struct {
	mu         sync.Mutex
	values     restaurant.Form
	errs       restaurant.FieldErrors
	registered []string
}

// NewState starts from initial, e.g. restaurant.FormFromRestaurant.
func NewState(initial restaurant.Form) *State {
	return &State{values: initial}
}

// Register implements Context.
func (s *State) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.registered {
		if n == name {
			return
		}
	}
	s.registered = append(s.registered, name)
}

// Registered lists field names in registration order.
func (s *State) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.registered...)
}

// Value implements Context.
func (s *State) Value(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Value(name)
}

// Error implements Context.
func (s *State) Error(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[name]
}

// Set changes a field and clears its error.
func (s *State) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values.Set(name, value)
	delete(s.errs, name)
}

// Form returns a copy of the current values.
func (s *State) Form() restaurant.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// Update replaces the non-scalar parts of the form.
func (s *State) Update(fn func(*restaurant.Form)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.values)
}

// Submit validates the form. On success it returns the encoded payload for
// the create or update mutation; otherwise the field errors are kept for the
// next Render and returned.
func (s *State) Submit() (*restaurant.FormData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, err := s.values.Encode()
	if err != nil {
		var fe restaurant.FieldErrors
		if errors.As(err, &fe) {
			s.errs = fe
		}
		return nil, err
	}
	s.errs = nil
	return fd, nil
}
