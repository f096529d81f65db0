package lob

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/hft/pkg/events"
	"github.com/luxfi/hft/pkg/fixed"
	"github.com/luxfi/hft/pkg/latency"
	"github.com/luxfi/hft/pkg/risk"
)

// EngineConfig carries the engine-wide policies. Zero values get
// sensible defaults in NewEngine.
type EngineConfig struct {
	MaxSymbols  int
	SelfTrade   SelfTradePolicy
	EventBuffer int
	EventPolicy events.Policy
	EventBudget time.Duration
}

// Engine is the multi-symbol matching engine. Order flow for one symbol
// is serialized by that symbol's book; flow for distinct symbols runs
// fully in parallel. Risk consultation happens outside any book lock.
type Engine struct {
	cfg EngineConfig

	mu    sync.RWMutex
	books map[string]*Book

	orderSeq uint64
	tradeSeq uint64

	logger   log.Logger
	bus      *events.Bus[Event]
	risk     *risk.Consultant
	profiler *latency.Recorder
}

// NewEngine builds an engine. consultant and profiler may be nil to run
// without risk checks or latency profiling.
func NewEngine(cfg EngineConfig, logger log.Logger, consultant *risk.Consultant, profiler *latency.Recorder) *Engine {
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = 256
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 65536
	}
	if cfg.EventBudget <= 0 {
		cfg.EventBudget = 50 * time.Microsecond
	}
	return &Engine{
		cfg:      cfg,
		books:    make(map[string]*Book),
		logger:   logger,
		bus:      events.NewBus[Event](cfg.EventBuffer, cfg.EventPolicy, cfg.EventBudget),
		risk:     consultant,
		profiler: profiler,
	}
}

// AddSymbol registers a new trading symbol with an empty book.
func (e *Engine) AddSymbol(symbol string) (*Book, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; ok {
		return nil, ErrSymbolExists
	}
	if len(e.books) >= e.cfg.MaxSymbols {
		return nil, ErrMaxSymbols
	}
	b := NewBook(symbol)
	e.books[symbol] = b
	if e.logger != nil {
		e.logger.Info("symbol added", "symbol", symbol, "total", len(e.books))
	}
	return b, nil
}

// RemoveSymbol delists a symbol. Resting orders are cancelled and
// reported on the event stream before the book is dropped.
func (e *Engine) RemoveSymbol(symbol string) error {
	e.mu.Lock()
	b, ok := e.books[symbol]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownSymbol
	}
	delete(e.books, symbol)
	e.mu.Unlock()

	b.mu.Lock()
	ids := make([]uint64, 0, len(b.orders))
	for id := range b.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		idx := b.orders[id]
		o := b.slab.get(idx)
		if o.closeOut(StatusCancelled) {
			b.unlink(idx, o)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		e.publish(Event{Type: EventOrderCancelled, Symbol: symbol, OrderID: id, Reason: "symbol delisted"})
	}
	if e.logger != nil {
		e.logger.Info("symbol removed", "symbol", symbol, "cancelled_orders", len(ids))
	}
	return nil
}

// Symbols lists the registered symbols.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Book returns a symbol's book for read access.
func (e *Engine) Book(symbol string) (*Book, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[symbol]
	return b, ok
}

// Events returns the engine's output stream.
func (e *Engine) Events() <-chan Event { return e.bus.Events() }

// DroppedEvents reports events lost to backpressure.
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

// Profiler exposes the latency recorder, nil when profiling is off.
func (e *Engine) Profiler() *latency.Recorder { return e.profiler }

// Trades reports the number of trades executed since startup.
func (e *Engine) Trades() uint64 { return atomic.LoadUint64(&e.tradeSeq) }

func (e *Engine) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.bus.Publish(ev)
}

// reject finishes a submission that never mutated the book.
func (e *Engine) reject(span *latency.Span, symbol string, id uint64, cause error) (OrderResult, error) {
	e.publish(Event{Type: EventOrderRejected, Symbol: symbol, OrderID: id, Reason: cause.Error()})
	span.Mark(latency.Published)
	span.Finish()
	return OrderResult{OrderID: id, Status: StatusRejected, Reason: cause.Error()}, cause
}

// crosses reports whether a taker at limit can trade against a resting
// price on the opposite side.
func crosses(takerSide Side, limit, resting fixed.Value) bool {
	if takerSide == Buy {
		return limit >= resting
	}
	return limit <= resting
}

// SubmitOrder validates, risk-checks and matches one incoming order.
// The returned result carries every fill in execution order; the error
// is non-nil only for rejections and invariant failures.
func (e *Engine) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	span := e.profiler.Begin()

	if !req.Price.IsPositive() {
		return e.reject(&span, req.Symbol, 0, ErrInvalidPrice)
	}
	if !req.Quantity.IsPositive() {
		return e.reject(&span, req.Symbol, 0, ErrInvalidQuantity)
	}
	b, ok := e.Book(req.Symbol)
	if !ok {
		return e.reject(&span, req.Symbol, 0, ErrUnknownSymbol)
	}
	if b.Halted() {
		return e.reject(&span, req.Symbol, 0, ErrBookHalted)
	}
	span.Mark(latency.Validated)

	// Risk runs outside the book lock so a slow checker stalls only
	// this order, never the symbol.
	if err := e.risk.Consult(ctx, risk.OrderInfo{
		Symbol:   req.Symbol,
		Buy:      req.Side == Buy,
		Price:    req.Price,
		Quantity: req.Quantity,
		Owner:    req.Owner,
	}); err != nil {
		return e.reject(&span, req.Symbol, 0, err)
	}
	span.Mark(latency.RiskChecked)

	id := atomic.AddUint64(&e.orderSeq, 1)
	taker := Order{
		ID:       id,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Owner:    req.Owner,
		Seq:      id,
		TIF:      req.TimeInForce,
		PostOnly: req.PostOnly,
	}
	taker.setStatus(StatusMatching)

	buf := acquireTradeBuffer()
	defer releaseTradeBuffer(buf)

	b.mu.Lock()

	if req.PostOnly {
		if best, ok := b.side(req.Side.Opposite()).best(); ok && crosses(req.Side, req.Price, best) {
			b.mu.Unlock()
			return e.reject(&span, req.Symbol, id, ErrPostOnlyWouldTake)
		}
	}
	if req.TimeInForce == FOK && !e.fillable(b, &taker) {
		b.mu.Unlock()
		return e.reject(&span, req.Symbol, id, ErrFOKNotFillable)
	}

	selfCancelled := e.match(b, &taker, buf)
	span.Mark(latency.Matched)

	result := OrderResult{OrderID: id}
	remaining := taker.Remaining()
	switch {
	case remaining == 0:
		taker.setStatus(StatusFilled)
		result.Status = StatusFilled
	case req.TimeInForce == IOC:
		taker.setStatus(StatusCancelled)
		result.Status = StatusCancelled
	case e.blockedBySelf(b, &taker):
		// The only liquidity left at crossing prices is the owner's
		// own; resting here would cross the book against it.
		taker.setStatus(StatusCancelled)
		result.Status = StatusCancelled
		result.Reason = ErrSelfTrade.Error()
	default:
		idx, slot := b.slab.alloc()
		*slot = taker
		if slot.Filled > 0 {
			slot.setStatus(StatusPartiallyResting)
		} else {
			slot.setStatus(StatusResting)
		}
		b.insertResting(idx, slot)
		result.Status = slot.Status()
	}
	result.Remaining = taker.Remaining()
	result.Trades = buf.Trades()

	invariantErr := b.verifyUncrossed()
	if invariantErr != nil {
		b.halt()
	}
	bestBid, _ := b.BestBid()
	bestAsk, _ := b.BestAsk()
	span.Mark(latency.BookUpdated)
	b.mu.Unlock()

	if invariantErr != nil {
		if e.logger != nil {
			e.logger.Error("book crossed after match, halting symbol",
				"symbol", req.Symbol, "order_id", id,
				"best_bid", bestBid.String(), "best_ask", bestAsk.String())
		}
		span.Finish()
		return result, invariantErr
	}

	for _, m := range selfCancelled {
		e.publish(Event{Type: EventOrderCancelled, Symbol: req.Symbol, OrderID: m.ID, Reason: ErrSelfTrade.Error()})
	}
	for i := 0; i < buf.Len(); i++ {
		t := buf.At(i)
		e.publish(Event{Type: EventTradeExecuted, Symbol: req.Symbol, OrderID: id, Trade: &t, Timestamp: t.Timestamp})
	}
	e.publish(Event{Type: EventOrderAccepted, Symbol: req.Symbol, OrderID: id})
	if result.Status == StatusCancelled {
		e.publish(Event{Type: EventOrderCancelled, Symbol: req.Symbol, OrderID: id, Reason: result.Reason})
	}
	e.publish(Event{Type: EventBookUpdated, Symbol: req.Symbol, BestBid: bestBid, BestAsk: bestAsk})
	span.Mark(latency.Published)
	span.Finish()
	return result, nil
}

// fillable pre-checks a fill-or-kill order against the opposite side's
// crossing liquidity, excluding same-owner orders. Caller holds the
// write lock.
func (e *Engine) fillable(b *Book, taker *Order) bool {
	var avail fixed.Value
	opp := b.side(taker.Side.Opposite())
	for _, price := range opp.prices {
		if !crosses(taker.Side, taker.Price, price) {
			break
		}
		for _, idx := range opp.levels[price].queue {
			maker := b.slab.get(idx)
			if maker.Owner != "" && maker.Owner == taker.Owner {
				continue
			}
			avail += maker.Remaining()
			if avail >= taker.Quantity {
				return true
			}
		}
	}
	return false
}

// blockedBySelf reports whether the opposite best still crosses the
// taker after matching, which can only happen when skip policy walked
// past the owner's own orders. Caller holds the write lock.
func (e *Engine) blockedBySelf(b *Book, taker *Order) bool {
	best, ok := b.side(taker.Side.Opposite()).best()
	return ok && crosses(taker.Side, taker.Price, best)
}

// match walks the opposite side best-first, filling FIFO within each
// level at the maker's price. Returns the resting orders cancelled by
// the self-trade policy so the caller can report them after unlocking.
// Caller holds the write lock.
func (e *Engine) match(b *Book, taker *Order, buf *TradeBuffer) []Order {
	var selfCancelled []Order
	oppSide := taker.Side.Opposite()
	opp := b.side(oppSide)
	mutated := false

	pos := 0
	for taker.Remaining() > 0 && pos < len(opp.prices) {
		price := opp.prices[pos]
		if !crosses(taker.Side, taker.Price, price) {
			break
		}
		level := opp.levels[price]

		i := 0
		for i < len(level.queue) && taker.Remaining() > 0 {
			idx := level.queue[i]
			maker := b.slab.get(idx)

			if maker.Owner != "" && maker.Owner == taker.Owner {
				if e.cfg.SelfTrade == SelfTradeSkip {
					i++
					continue
				}
				if maker.closeOut(StatusCancelled) {
					selfCancelled = append(selfCancelled, *maker)
					level.removeAt(i)
					level.reduce(maker.Remaining())
					delete(b.orders, maker.ID)
					b.slab.release(idx)
					mutated = true
					continue
				}
				i++
				continue
			}

			// Claim the maker so a racing cancel resolves to exactly
			// one winner before any quantity moves.
			claimed := false
			for {
				cur := maker.Status()
				if !cur.open() {
					break
				}
				if maker.transition(cur, StatusMatching) {
					claimed = true
					break
				}
			}
			if !claimed {
				level.removeAt(i)
				level.reduce(maker.Remaining())
				delete(b.orders, maker.ID)
				b.slab.release(idx)
				mutated = true
				continue
			}

			qty := fixed.Min(taker.Remaining(), maker.Remaining())
			maker.Filled += qty
			taker.Filled += qty
			level.reduce(qty)
			mutated = true

			buf.Append(Trade{
				ID:        atomic.AddUint64(&e.tradeSeq, 1),
				Symbol:    taker.Symbol,
				MakerID:   maker.ID,
				TakerID:   taker.ID,
				Price:     maker.Price, // execution is always at the resting price
				Quantity:  qty,
				TakerSide: taker.Side,
				Seq:       b.nextTradeSeq(),
				Timestamp: time.Now(),
			})

			if maker.Remaining() == 0 {
				maker.setStatus(StatusFilled)
				level.removeAt(i)
				delete(b.orders, maker.ID)
				b.slab.release(idx)
			} else {
				maker.setStatus(StatusPartiallyResting)
				i++
			}
		}

		if level.Empty() {
			opp.destroy(price)
			continue // pos now points at the next level
		}
		// Level survived: either the taker is done or only same-owner
		// orders remain here; move to the next crossing level.
		pos++
	}

	if mutated {
		b.publishBest(oppSide)
		b.bump()
	}
	return selfCancelled
}

// Cancel removes a resting order. It succeeds only if the cancel wins
// the state transition; an order already filled or cancelled returns
// ErrOrderUnavailable. Cancels are accepted on a halted book since they
// only reduce exposure.
func (e *Engine) Cancel(req CancelRequest) error {
	b, ok := e.Book(req.Symbol)
	if !ok {
		return ErrUnknownSymbol
	}

	b.mu.Lock()
	idx, ok := b.orders[req.OrderID]
	if !ok {
		b.mu.Unlock()
		return ErrOrderNotFound
	}
	o := b.slab.get(idx)
	if !o.closeOut(StatusCancelled) {
		b.mu.Unlock()
		return ErrOrderUnavailable
	}
	b.unlink(idx, o)
	bestBid, _ := b.BestBid()
	bestAsk, _ := b.BestAsk()
	b.mu.Unlock()

	e.publish(Event{Type: EventOrderCancelled, Symbol: req.Symbol, OrderID: req.OrderID})
	e.publish(Event{Type: EventBookUpdated, Symbol: req.Symbol, BestBid: bestBid, BestAsk: bestAsk})
	return nil
}

// Modify is cancel-and-replace: the order loses time priority and the
// replacement runs the full submission path, including matching if the
// new price crosses. The replacement gets a fresh ID.
func (e *Engine) Modify(ctx context.Context, req ModifyRequest) (OrderResult, error) {
	if !req.Price.IsPositive() {
		return OrderResult{Status: StatusRejected, Reason: ErrInvalidPrice.Error()}, ErrInvalidPrice
	}
	if !req.Quantity.IsPositive() {
		return OrderResult{Status: StatusRejected, Reason: ErrInvalidQuantity.Error()}, ErrInvalidQuantity
	}
	b, ok := e.Book(req.Symbol)
	if !ok {
		return OrderResult{Status: StatusRejected, Reason: ErrUnknownSymbol.Error()}, ErrUnknownSymbol
	}
	if b.Halted() {
		return OrderResult{Status: StatusRejected, Reason: ErrBookHalted.Error()}, ErrBookHalted
	}

	b.mu.Lock()
	idx, ok := b.orders[req.OrderID]
	if !ok {
		b.mu.Unlock()
		return OrderResult{Status: StatusRejected, Reason: ErrOrderNotFound.Error()}, ErrOrderNotFound
	}
	o := b.slab.get(idx)
	side, owner, tif, postOnly := o.Side, o.Owner, o.TIF, o.PostOnly
	if !o.closeOut(StatusCancelled) {
		b.mu.Unlock()
		return OrderResult{Status: StatusRejected, Reason: ErrOrderUnavailable.Error()}, ErrOrderUnavailable
	}
	b.unlink(idx, o)
	b.mu.Unlock()

	e.publish(Event{Type: EventOrderCancelled, Symbol: req.Symbol, OrderID: req.OrderID, Reason: "replaced"})

	return e.SubmitOrder(ctx, OrderRequest{
		Symbol:      req.Symbol,
		Side:        side,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Owner:       owner,
		TimeInForce: tif,
		PostOnly:    postOnly,
	})
}

// Process dispatches one request from the closed operation set.
func (e *Engine) Process(ctx context.Context, req Request) (OrderResult, error) {
	switch req.Kind {
	case ReqAdd:
		return e.SubmitOrder(ctx, req.Add)
	case ReqCancel:
		err := e.Cancel(req.Cancel)
		if err != nil {
			return OrderResult{OrderID: req.Cancel.OrderID, Status: StatusRejected, Reason: err.Error()}, err
		}
		return OrderResult{OrderID: req.Cancel.OrderID, Status: StatusCancelled}, nil
	case ReqModify:
		return e.Modify(ctx, req.Modify)
	default:
		return OrderResult{Status: StatusRejected, Reason: "unknown request kind"}, ErrOrderNotFound
	}
}
