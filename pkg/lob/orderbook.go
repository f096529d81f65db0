package lob

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/hft/pkg/fixed"
)

// bookSide holds one side's price levels, best-first: bids descending,
// asks ascending. Structure is guarded by the owning book's write lock.
type bookSide struct {
	side   Side
	levels map[fixed.Value]*PriceLevel
	prices []fixed.Value // sorted best-first
}

func newBookSide(side Side) *bookSide {
	return &bookSide{
		side:   side,
		levels: make(map[fixed.Value]*PriceLevel),
	}
}

// insertPos returns where price belongs in the best-first ordering.
func (s *bookSide) insertPos(price fixed.Value) int {
	if s.side == Buy {
		return sort.Search(len(s.prices), func(i int) bool { return s.prices[i] < price })
	}
	return sort.Search(len(s.prices), func(i int) bool { return s.prices[i] > price })
}

// getOrCreate locates or creates the level for price.
func (s *bookSide) getOrCreate(price fixed.Value) *PriceLevel {
	if l, ok := s.levels[price]; ok {
		return l
	}
	l := newPriceLevel(price)
	s.levels[price] = l
	pos := s.insertPos(price)
	s.prices = append(s.prices, 0)
	copy(s.prices[pos+1:], s.prices[pos:])
	s.prices[pos] = price
	return l
}

// destroy removes an emptied level. A level's lifetime is strictly
// bounded by its member orders' presence.
func (s *bookSide) destroy(price fixed.Value) {
	delete(s.levels, price)
	for i, p := range s.prices {
		if p == price {
			copy(s.prices[i:], s.prices[i+1:])
			s.prices = s.prices[:len(s.prices)-1]
			return
		}
	}
}

// best returns the side's best price, false when empty.
func (s *bookSide) best() (fixed.Value, bool) {
	if len(s.prices) == 0 {
		return 0, false
	}
	return s.prices[0], true
}

// Book is one symbol's limit order book. All mutating operations are
// serialized by mu (logical single writer per symbol); best-price reads
// go through atomic caches and never block, depth snapshots take only
// the read side of the lock. Distinct symbols share no mutable state.
type Book struct {
	symbol string

	mu   sync.RWMutex
	slab *orderSlab
	// orders maps order ID to its slab index for O(1) cancel lookup.
	orders map[uint64]uint32
	bids   *bookSide
	asks   *bookSide

	// Cached best prices, raw fixed.Value, zero when the side is empty.
	// Valid prices are strictly positive so zero is unambiguous.
	bestBid int64
	bestAsk int64

	sequence uint64 // bumps on every committed mutation
	tradeSeq uint64 // per-trade stream position, strictly increasing
	halted   uint32 // set on invariant violation, cleared only by Reset
}

// NewBook creates an empty book for symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		slab:   newOrderSlab(),
		orders: make(map[uint64]uint32),
		bids:   newBookSide(Buy),
		asks:   newBookSide(Sell),
	}
}

// Symbol returns the book's symbol.
func (b *Book) Symbol() string { return b.symbol }

// BestBid returns the cached highest resting buy price. ok is false
// when the bid side is empty; the price is undefined in that case.
func (b *Book) BestBid() (fixed.Value, bool) {
	raw := atomic.LoadInt64(&b.bestBid)
	return fixed.Value(raw), raw != 0
}

// BestAsk returns the cached lowest resting sell price.
func (b *Book) BestAsk() (fixed.Value, bool) {
	raw := atomic.LoadInt64(&b.bestAsk)
	return fixed.Value(raw), raw != 0
}

// Spread returns ask minus bid when both sides are populated.
func (b *Book) Spread() (fixed.Value, bool) {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns the midpoint of the touch when both sides are
// populated.
func (b *Book) MidPrice() (fixed.Value, bool) {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return 0, false
	}
	return bid + (ask-bid)/2, true
}

// Halted reports whether matching on this symbol has been stopped by an
// invariant violation.
func (b *Book) Halted() bool { return atomic.LoadUint32(&b.halted) == 1 }

// halt stops all further matching on the symbol. Recovery is an
// explicit operator action, never automatic.
func (b *Book) halt() { atomic.StoreUint32(&b.halted, 1) }

// Sequence returns the book's mutation sequence number.
func (b *Book) Sequence() uint64 { return atomic.LoadUint64(&b.sequence) }

func (b *Book) bump() { atomic.AddUint64(&b.sequence, 1) }

// nextTradeSeq returns the next position in the book's trade stream.
func (b *Book) nextTradeSeq() uint64 { return atomic.AddUint64(&b.tradeSeq, 1) }

// side returns the book side for s.
func (b *Book) side(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// publishBest refreshes one side's atomic best-price cache. Called
// under the write lock after any structural change to that side.
func (b *Book) publishBest(s Side) {
	side := b.side(s)
	raw := int64(0)
	if p, ok := side.best(); ok {
		raw = p.Raw()
	}
	if s == Buy {
		atomic.StoreInt64(&b.bestBid, raw)
	} else {
		atomic.StoreInt64(&b.bestAsk, raw)
	}
}

// insertResting adds an order to its price level, creating the level if
// this is the first order at that price, and refreshes the best cache
// when the price improves the touch. Caller holds the write lock.
func (b *Book) insertResting(idx uint32, o *Order) {
	level := b.side(o.Side).getOrCreate(o.Price)
	level.add(idx, o.Remaining())
	b.orders[o.ID] = idx
	b.publishBest(o.Side)
	b.bump()
}

// unlink removes an order from its level, destroying the level when it
// empties and rescanning to the next best when the removed level was
// the touch. Caller holds the write lock and has already won the state
// transition.
func (b *Book) unlink(idx uint32, o *Order) {
	side := b.side(o.Side)
	level, ok := side.levels[o.Price]
	if !ok {
		return
	}
	if pos := level.indexOf(idx); pos >= 0 {
		level.removeAt(pos)
		level.reduce(o.Remaining())
	}
	if level.Empty() {
		side.destroy(o.Price)
	}
	delete(b.orders, o.ID)
	b.slab.release(idx)
	b.publishBest(o.Side)
	b.bump()
}

// verifyUncrossed checks the resting-book invariant: whenever both
// sides are non-empty, best bid < best ask. A violation is a fatal
// internal defect, never a valid transient state after an operation
// completes.
func (b *Book) verifyUncrossed() error {
	bid, okB := b.bids.best()
	ask, okA := b.asks.best()
	if okB && okA && bid >= ask {
		return ErrCrossedBook
	}
	return nil
}

// Depth returns the top n levels per side with price and aggregate
// quantity. n <= 0 returns all levels. The snapshot never blocks
// matching's read path and tolerates a bounded staleness window.
func (b *Book) Depth(n int) Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := Depth{
		Symbol:    b.symbol,
		Sequence:  b.Sequence(),
		Timestamp: time.Now(),
	}
	d.Bids = b.bids.levelInfos(n)
	d.Asks = b.asks.levelInfos(n)
	return d
}

func (s *bookSide) levelInfos(n int) []LevelInfo {
	max := len(s.prices)
	if n > 0 && n < max {
		max = n
	}
	infos := make([]LevelInfo, 0, max)
	for _, p := range s.prices[:max] {
		l := s.levels[p]
		infos = append(infos, LevelInfo{
			Price:    l.Price(),
			Quantity: l.TotalQuantity(),
			Orders:   l.OrderCount(),
		})
	}
	return infos
}

// Snapshot returns the full book, every level on both sides.
func (b *Book) Snapshot() Depth { return b.Depth(0) }

// TotalVolume sums the resting quantity on one side.
func (b *Book) TotalVolume(s Side) fixed.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total fixed.Value
	for _, l := range b.side(s).levels {
		total += l.TotalQuantity()
	}
	return total
}

// Order returns a copy of a live order's public fields, or false when
// the ID is unknown or already reclaimed.
func (b *Book) Order(id uint64) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	o := b.slab.get(idx)
	cp := Order{
		ID:       o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    o.Price,
		Quantity: o.Quantity,
		Filled:   o.Filled,
		Owner:    o.Owner,
		Seq:      o.Seq,
		TIF:      o.TIF,
		PostOnly: o.PostOnly,
	}
	cp.setStatus(o.Status())
	return cp, true
}

// RestingOrders reports the number of live orders on the book.
func (b *Book) RestingOrders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
