package lob

import (
	"runtime"
	"sync/atomic"

	"github.com/luxfi/hft/pkg/fixed"
)

// casRetryBudget bounds optimistic retries before yielding the
// processor. Contention past the budget is transient by construction
// (per-symbol single writer), so a cooperative yield is enough.
const casRetryBudget = 64

// PriceLevel aggregates every resting order at one exact price,
// FIFO-ordered by arrival sequence. The queue structure is guarded by
// the owning book's write lock; the aggregate quantity and order count
// are atomics so depth readers never block matching. A level is created
// on the first order at its price and destroyed when the last one
// leaves.
type PriceLevel struct {
	price fixed.Value
	queue []uint32 // slab indices, head = earliest arrival

	totalQty int64 // raw fixed.Value, atomic
	count    int32 // atomic
}

func newPriceLevel(price fixed.Value) *PriceLevel {
	return &PriceLevel{
		price: price,
		queue: make([]uint32, 0, 16),
	}
}

// Price returns the level's price.
func (l *PriceLevel) Price() fixed.Value { return l.price }

// TotalQuantity returns the resting quantity aggregate. Concurrent
// readers observe a value that is never negative and never
// double-counted, though it may trail an in-flight update by
// microseconds.
func (l *PriceLevel) TotalQuantity() fixed.Value {
	return fixed.Value(atomic.LoadInt64(&l.totalQty))
}

// OrderCount returns the number of resting orders.
func (l *PriceLevel) OrderCount() int {
	return int(atomic.LoadInt32(&l.count))
}

// Empty reports whether the level has no orders left; the owning book
// destroys it when true.
func (l *PriceLevel) Empty() bool { return atomic.LoadInt32(&l.count) == 0 }

// add appends an order to the FIFO tail. Never fails for valid input.
func (l *PriceLevel) add(idx uint32, qty fixed.Value) {
	l.queue = append(l.queue, idx)
	atomic.AddInt64(&l.totalQty, qty.Raw())
	atomic.AddInt32(&l.count, 1)
}

// reduce decrements the aggregate by qty using compare-and-retry so the
// published value is never driven below zero even while fills against
// different orders at this level are in flight.
func (l *PriceLevel) reduce(qty fixed.Value) {
	dec := qty.Raw()
	for {
		for i := 0; i < casRetryBudget; i++ {
			cur := atomic.LoadInt64(&l.totalQty)
			next := cur - dec
			if next < 0 {
				next = 0
			}
			if atomic.CompareAndSwapInt64(&l.totalQty, cur, next) {
				return
			}
		}
		runtime.Gosched()
	}
}

// removeAt removes the queue entry at position i, preserving FIFO order
// for the rest. The caller adjusts the aggregate via reduce.
func (l *PriceLevel) removeAt(i int) {
	copy(l.queue[i:], l.queue[i+1:])
	l.queue = l.queue[:len(l.queue)-1]
	atomic.AddInt32(&l.count, -1)
}

// indexOf locates a slab index in the queue, -1 when absent.
func (l *PriceLevel) indexOf(idx uint32) int {
	for i, q := range l.queue {
		if q == idx {
			return i
		}
	}
	return -1
}
