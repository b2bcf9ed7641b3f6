// Package events provides the bounded queue that carries press events from
// the GPIO edge handler to the dispatcher.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = logic.DefaultQueueCapacity

var errCapacity = errors.New("events: capacity must be positive")

// Channel is a fixed-capacity FIFO of sources.
// Send never blocks: when the queue is full the newest item is dropped.
// Any number of goroutines may Send; one goroutine should Receive.
type Channel struct {
	items chan logic.Source
}

// New creates a Channel with the given capacity.
func New(capacity int) (*Channel, error) {
	if capacity <= 0 {
		return nil, errCapacity
	}
	return &Channel{items: make(chan logic.Source, capacity)}, nil
}

// Send enqueues src without blocking and reports whether it was accepted.
func (c *Channel) Send(src logic.Source) bool {
	select {
	case c.items <- src:
		return true
	default:
		return false
	}
}

// Receive waits up to timeout for the oldest queued source.
// It returns false on timeout or when ctx is done.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (logic.Source, bool) {
	// Fast path: no timer needed when something is already queued.
	select {
	case src := <-c.items:
		return src, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case src := <-c.items:
		return src, true
	case <-timer.C:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

// Len returns the number of queued sources.
func (c *Channel) Len() int {
	return len(c.items)
}

// Cap returns the fixed capacity.
func (c *Channel) Cap() int {
	return cap(c.items)
}
