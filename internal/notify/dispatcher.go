package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrQueueFull is returned when the dispatcher buffer has no room.
var ErrQueueFull = errors.New("notify: queue full")

const (
	defaultBuffer      = 256
	defaultSinkTimeout = 10 * time.Second
)

// Dispatcher decouples event producers from slow sinks. Notify only
// enqueues; a single Run goroutine delivers events in order.
type Dispatcher struct {
	events  chan Event
	sink    Sink
	log     *slog.Logger
	timeout time.Duration
}

func NewDispatcher(log *slog.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		events:  make(chan Event, buffer),
		sink:    Multi(sinks),
		log:     log,
		timeout: defaultSinkTimeout,
	}
}

// Notify enqueues e without blocking. A full queue drops the event.
func (d *Dispatcher) Notify(_ context.Context, e Event) error {
	select {
	case d.events <- e:
		return nil
	default:
		d.log.Warn("event dropped", "kind", string(e.Kind()), "error", ErrQueueFull)
		return ErrQueueFull
	}
}

// Run delivers events until ctx is cancelled, then flushes what is
// already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.events:
			d.deliver(e)
		case <-ctx.Done():
			d.flush()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case e := <-d.events:
			d.deliver(e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Notify(ctx, e); err != nil {
		d.log.Warn("deliver event", "kind", string(e.Kind()), "error", err)
	}
}
