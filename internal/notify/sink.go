package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sink receives events. Delivery is best effort: callers log failures and
// never undo state because a sink refused an event.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to a slog logger. Failures log at warn level.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Notify(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Kind() == KindOperationFailed {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "event", "kind", string(e.Kind()), "event", e)
	return nil
}

// Recorder keeps every event it receives. Used by tests and the CLI.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what has been recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind filters recorded events by kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}
