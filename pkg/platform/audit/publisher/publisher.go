// Package publisher emits escrow action records to an audit store,
// synchronously by default or through a buffered channel when configured.
package publisher

import (
	"context"
	"sync"
	"time"

	id "paylink/pkg/domain"
	audit "paylink/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store audit.Store

	inbox  chan audit.Event
	done   chan struct{}
	closed sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking: events are queued on a channel of
// the given size and drained by a background goroutine. When the buffer is
// full, Emit falls back to a synchronous append so events are never dropped.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// NewPublisher builds a Publisher backed by the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records one event. A zero timestamp is filled with the current time.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		// Buffer full: append inline rather than drop the record.
		return p.store.Append(ctx, event)
	}
}

// List returns the action trail for one escrow.
func (p *Publisher) List(ctx context.Context, escrowID id.EscrowID) ([]audit.Event, error) {
	return p.store.ListByEscrow(ctx, escrowID)
}

// Close stops the background drainer after flushing queued events.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			<-p.done
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		// Queued events survive request cancellation; use a fresh context.
		_ = p.store.Append(context.Background(), event)
	}
}
