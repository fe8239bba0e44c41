// Package operations provides a fail-open audit publisher for operational
// events.
//
// Publisher hands events to a buffered channel drained by a background
// worker; the calling operation never blocks or fails on audit problems.
// Under sustained backpressure events are dropped and counted in the log.
//
// Use for: batch_created, batch_paid, card_issued, request_printed.
package operations

import (
	"context"
	"log/slog"
	"time"

	audit "kta/pkg/platform/audit"
)

// Publisher emits operational events with fail-open semantics.
type Publisher struct {
	out    chan audit.Event
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for drop reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates an operations publisher with the given buffer size.
func New(buffer int, opts ...Option) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{out: make(chan audit.Event, buffer)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events exposes the inbox for the draining worker.
func (p *Publisher) Events() <-chan audit.Event {
	return p.out
}

// Emit enqueues an operational event. Never blocks: when the buffer is full
// the event is dropped and logged.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryOperations

	select {
	case p.out <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "operations audit buffer full, event dropped",
				"action", event.Action,
				"subject", event.Subject,
			)
		}
	}
}

// Close releases the inbox channel. Call only after all emitters stopped.
func (p *Publisher) Close() error {
	close(p.out)
	return nil
}
