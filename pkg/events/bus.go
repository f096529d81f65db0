// Package events provides the bounded in-process event queue that sits
// between the matching path and downstream consumers. Publishing never
// blocks matching for longer than the configured budget.
package events

import (
	"sync/atomic"
	"time"
)

// Policy selects the behavior when the queue is full.
type Policy uint8

const (
	// DropOldest evicts the oldest queued event to make room. Downstream
	// consumers needing a complete stream must keep up or resync from a
	// book snapshot.
	DropOldest Policy = iota
	// Block waits up to the publish budget for space, then drops the new
	// event.
	Block
)

func (p Policy) String() string {
	if p == Block {
		return "block"
	}
	return "drop-oldest"
}

// ParsePolicy maps a config string to a Policy; unknown values fall
// back to DropOldest.
func ParsePolicy(s string) Policy {
	if s == "block" {
		return Block
	}
	return DropOldest
}

// retryBudget bounds the evict-and-retry loop under DropOldest so a
// slow consumer can never spin the publisher indefinitely.
const retryBudget = 64

// Bus is a bounded single-consumer event queue. Publish is safe for
// concurrent producers; Events is consumed by one goroutine.
type Bus[T any] struct {
	ch      chan T
	policy  Policy
	budget  time.Duration
	dropped uint64 // atomic
}

// NewBus creates a bus holding up to size events. budget only applies
// under the Block policy.
func NewBus[T any](size int, policy Policy, budget time.Duration) *Bus[T] {
	if size <= 0 {
		size = 1024
	}
	return &Bus[T]{
		ch:     make(chan T, size),
		policy: policy,
		budget: budget,
	}
}

// Publish enqueues ev. It returns false when an event was lost: either
// an old event was evicted or ev itself was dropped after the budget.
func (b *Bus[T]) Publish(ev T) bool {
	select {
	case b.ch <- ev:
		return true
	default:
	}

	if b.policy == Block {
		t := time.NewTimer(b.budget)
		defer t.Stop()
		select {
		case b.ch <- ev:
			return true
		case <-t.C:
			atomic.AddUint64(&b.dropped, 1)
			return false
		}
	}

	for i := 0; i < retryBudget; i++ {
		select {
		case <-b.ch:
			atomic.AddUint64(&b.dropped, 1)
		default:
		}
		select {
		case b.ch <- ev:
			return false // delivered, but an older event was lost
		default:
		}
	}
	atomic.AddUint64(&b.dropped, 1)
	return false
}

// Events returns the consumer side of the queue.
func (b *Bus[T]) Events() <-chan T { return b.ch }

// Dropped reports how many events have been lost since creation.
func (b *Bus[T]) Dropped() uint64 { return atomic.LoadUint64(&b.dropped) }

// Len reports the current queue depth.
func (b *Bus[T]) Len() int { return len(b.ch) }

// Close closes the consumer channel. Publish must not be called after
// Close.
func (b *Bus[T]) Close() { close(b.ch) }
