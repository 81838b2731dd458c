// Package notify delivers the transient success and error messages shown to
// restaurant owners after a mutation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/obs"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Notifier is the notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Success is shorthand for a success notification.
func Success(message string) Notification { return Notification{Kind: KindSuccess, Message: message} }

// Error is shorthand for an error notification.
func Error(message string) Notification { return Notification{Kind: KindError, Message: message} }

// Log writes notifications to a zerolog logger.
type Log struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, n Notification) error {
	evt := l.Logger.Info()
	if n.Kind == KindError {
		evt = l.Logger.Error()
	}
	evt.Str("kind", string(n.Kind)).Msg(n.Message)
	return nil
}

// Writer prints notifications as single lines, the CLI's stand-in for a toast.
type Writer struct {
	Out io.Writer
}

// Notify implements Notifier.
func (w Writer) Notify(_ context.Context, n Notification) error {
	if w.Out == nil {
		return nil
	}
	prefix := "ok"
	if n.Kind == KindError {
		prefix = "error"
	}
	_, err := fmt.Fprintf(w.Out, "[%s] %s\n", prefix, n.Message)
	return err
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.seen...)
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.seen {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var joined error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			joined = errors.Join(joined, fmt.Errorf("notify: %w", err))
		}
	}
	return joined
}

// Instrumented counts notifications before passing them on.
type Instrumented struct {
	Next    Notifier
	Metrics *obs.APIMetrics
}

// Notify implements Notifier.
func (i Instrumented) Notify(ctx context.Context, n Notification) error {
	i.Metrics.ObserveNotification(string(n.Kind))
	if i.Next == nil {
		return nil
	}
	return i.Next.Notify(ctx, n)
}
