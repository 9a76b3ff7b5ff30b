// Package bridge carries notification events from the blocking poll
// goroutines into the single dispatcher goroutine.
package bridge

import (
	"context"
	"sync"

	"tswatcher/internal/model"
)

// Bridge is a multi-producer single-consumer handoff. Publish never
// blocks and never drops; Next suspends until an event arrives, with no
// consumer-side polling interval. Submission order is preserved.
type Bridge struct {
	mu    sync.Mutex
	queue []model.Event
	wake  chan struct{}
}

func New() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Publish enqueues an event. Safe to call concurrently from any
// goroutine.
func (b *Bridge) Publish(ev model.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Next returns the oldest queued event, waiting until one is published
// or the context is cancelled.
func (b *Bridge) Next(ctx context.Context) (model.Event, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Event{}, ctx.Err()
		case <-b.wake:
		}
	}
}

// Len reports the number of queued events.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
