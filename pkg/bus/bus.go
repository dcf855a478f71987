// Package bus decouples the long-poll reader from the dispatch loop: the
// reader publishes raw Zulip events, the gateway consumes them one at a
// time. A bounded buffer absorbs event bursts without blocking the poll.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	events chan zulip.RawEvent
	done   chan struct{}
	closed atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan zulip.RawEvent, 100),
		done:   make(chan struct{}),
	}
}

func (b *EventBus) Publish(ctx context.Context, ev zulip.RawEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks for the next event. The second return value is false when
// the bus is closed or ctx is cancelled.
func (b *EventBus) Consume(ctx context.Context) (zulip.RawEvent, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-b.done:
		return zulip.RawEvent{}, false
	case <-ctx.Done():
		return zulip.RawEvent{}, false
	}
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
