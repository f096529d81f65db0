package lob

import "sync"

// inlineTrades covers the common case: one incoming order produces 0-8
// fills. Beyond that the buffer spills to a heap slice rather than
// failing the operation.
const inlineTrades = 8

// TradeBuffer collects the fills produced by one incoming order without
// heap allocation in the common case.
type TradeBuffer struct {
	inline   [inlineTrades]Trade
	n        int
	overflow []Trade
}

// Append adds a trade, spilling past the inline capacity.
func (b *TradeBuffer) Append(t Trade) {
	if b.n < inlineTrades {
		b.inline[b.n] = t
		b.n++
		return
	}
	b.overflow = append(b.overflow, t)
}

// Len returns the number of buffered trades.
func (b *TradeBuffer) Len() int { return b.n + len(b.overflow) }

// At returns the i-th trade in append order.
func (b *TradeBuffer) At(i int) Trade {
	if i < b.n {
		return b.inline[i]
	}
	return b.overflow[i-b.n]
}

// Trades copies the buffered fills into a fresh slice for the caller.
// Returns nil when empty so results stay allocation-free on the no-fill
// path.
func (b *TradeBuffer) Trades() []Trade {
	total := b.Len()
	if total == 0 {
		return nil
	}
	out := make([]Trade, 0, total)
	out = append(out, b.inline[:b.n]...)
	out = append(out, b.overflow...)
	return out
}

// Reset clears the buffer for reuse. The overflow slice keeps its
// capacity.
func (b *TradeBuffer) Reset() {
	b.n = 0
	b.overflow = b.overflow[:0]
}

var tradeBufferPool = sync.Pool{
	New: func() interface{} { return &TradeBuffer{} },
}

func acquireTradeBuffer() *TradeBuffer {
	return tradeBufferPool.Get().(*TradeBuffer)
}

func releaseTradeBuffer(b *TradeBuffer) {
	b.Reset()
	tradeBufferPool.Put(b)
}

// slabChunk is the number of order slots allocated at a time.
const slabChunk = 4096

// noIndex marks an unset slab reference.
const noIndex = ^uint32(0)

// orderSlab is a per-symbol arena of order records addressed by small
// integer indices. Price levels store indices rather than pointers,
// which removes ownership cycles between orders, levels and the book
// and gives O(1) reclamation when an order terminates. Chunked growth
// keeps existing slots stable in memory; the slab never fails an
// allocation, it only degrades to allocating one more chunk.
//
// All slab mutation happens under the owning book's write lock.
type orderSlab struct {
	chunks [][]Order
	free   []uint32
	next   uint32 // first never-used slot
}

func newOrderSlab() *orderSlab {
	s := &orderSlab{}
	s.chunks = append(s.chunks, make([]Order, slabChunk))
	return s
}

// alloc returns a zeroed slot and its index.
func (s *orderSlab) alloc() (uint32, *Order) {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		o := s.get(idx)
		*o = Order{}
		return idx, o
	}
	idx := s.next
	chunk := int(idx) / slabChunk
	if chunk == len(s.chunks) {
		s.chunks = append(s.chunks, make([]Order, slabChunk))
	}
	s.next++
	return idx, s.get(idx)
}

// get resolves an index to its slot. The pointer stays valid for the
// slab's lifetime; chunks are never moved.
func (s *orderSlab) get(idx uint32) *Order {
	return &s.chunks[int(idx)/slabChunk][int(idx)%slabChunk]
}

// release returns a slot to the free list once the order is terminal.
func (s *orderSlab) release(idx uint32) {
	s.free = append(s.free, idx)
}

// inUse reports the number of live slots, for introspection and tests.
func (s *orderSlab) inUse() int {
	return int(s.next) - len(s.free)
}
