// Package lob implements a concurrent, multi-symbol limit order book with
// an integrated price-time-priority matching engine. Each symbol's book is
// single-writer: all mutations are serialized per symbol, while best-price
// and depth reads are lock-free and may run concurrently with matching.
package lob

import (
	"sync/atomic"
	"time"

	"github.com/luxfi/hft/pkg/fixed"
)

// Side represents order side (buy/sell).
type Side uint8

const (
	Buy Side = iota
	Sell
)

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// TimeInForce controls what happens to the unfilled remainder of an order.
type TimeInForce uint8

const (
	// GTC rests the remainder on the book.
	GTC TimeInForce = iota
	// IOC cancels the remainder instead of resting it.
	IOC
	// FOK rejects the order outright unless it can fill completely.
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "GTC"
	}
}

// OrderStatus is the per-order lifecycle state. Transitions out of the
// open states are gated by compare-and-swap on Order.state so a cancel
// racing a fill resolves to exactly one winner.
type OrderStatus uint32

const (
	StatusReceived OrderStatus = iota
	StatusValidated
	StatusMatching
	StatusResting
	StatusPartiallyResting
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusReceived:
		return "RECEIVED"
	case StatusValidated:
		return "VALIDATED"
	case StatusMatching:
		return "MATCHING"
	case StatusResting:
		return "RESTING"
	case StatusPartiallyResting:
		return "PARTIALLY_RESTING"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// open reports whether the order still has quantity on the book.
func (s OrderStatus) open() bool {
	return s == StatusResting || s == StatusPartiallyResting
}

// SelfTradePolicy decides what happens when the best opposite resting
// order shares the incoming order's owner. Matching same-owner orders
// silently is never allowed.
type SelfTradePolicy uint8

const (
	// SelfTradeSkip leaves the resting order untouched and continues to
	// the next order at that price, preserving others' time priority.
	SelfTradeSkip SelfTradePolicy = iota
	// SelfTradeCancelResting cancels the resting order and continues.
	SelfTradeCancelResting
)

func (p SelfTradePolicy) String() string {
	if p == SelfTradeCancelResting {
		return "cancel-resting"
	}
	return "skip"
}

// ParseSelfTradePolicy maps a config string to a policy; unknown values
// fall back to SelfTradeSkip.
func ParseSelfTradePolicy(s string) SelfTradePolicy {
	if s == "cancel-resting" {
		return SelfTradeCancelResting
	}
	return SelfTradeSkip
}

// Order is a resting or in-flight order. Once accepted it is owned
// exclusively by its symbol's book and mutated only by the matching
// engine under the book's write lock; state is additionally guarded by
// CAS so concurrent observers never see a double transition.
type Order struct {
	ID       uint64
	Symbol   string
	Side     Side
	Price    fixed.Value
	Quantity fixed.Value // original quantity, never mutated
	Filled   fixed.Value // mutated only by the book writer
	Owner    string
	Seq      uint64 // arrival sequence, FIFO tie-break within a level
	TIF      TimeInForce
	PostOnly bool

	// state holds an OrderStatus, accessed atomically so it can be
	// zeroed with the rest of the record when the slab recycles it.
	state uint32
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() fixed.Value { return o.Quantity - o.Filled }

// Status returns the current lifecycle state.
func (o *Order) Status() OrderStatus {
	return OrderStatus(atomic.LoadUint32(&o.state))
}

func (o *Order) setStatus(s OrderStatus) {
	atomic.StoreUint32(&o.state, uint32(s))
}

// transition atomically moves from one state to another; it fails if a
// concurrent transition won first.
func (o *Order) transition(from, to OrderStatus) bool {
	return atomic.CompareAndSwapUint32(&o.state, uint32(from), uint32(to))
}

// closeOut CASes the order out of whichever open state it is in.
// Exactly one of a racing cancel and fill observes true.
func (o *Order) closeOut(to OrderStatus) bool {
	for {
		cur := OrderStatus(atomic.LoadUint32(&o.state))
		if !cur.open() {
			return false
		}
		if atomic.CompareAndSwapUint32(&o.state, uint32(cur), uint32(to)) {
			return true
		}
	}
}

// Trade is one fill between a resting (maker) and an incoming (taker)
// order. Trades are immutable once created and appended to the output
// stream; the price is always the maker's price. ID is globally unique
// across symbols; Seq is the trade's position in its symbol's stream
// and increases by one per fill.
type Trade struct {
	ID        uint64
	Symbol    string
	MakerID   uint64
	TakerID   uint64
	Price     fixed.Value
	Quantity  fixed.Value
	TakerSide Side
	Seq       uint64
	Timestamp time.Time
}

// OrderRequest is the in-process submission contract.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Price       fixed.Value
	Quantity    fixed.Value
	Owner       string
	TimeInForce TimeInForce
	PostOnly    bool
}

// CancelRequest asks for removal of a resting order.
type CancelRequest struct {
	Symbol  string
	OrderID uint64
}

// ModifyRequest replaces a resting order's price and quantity. The order
// loses time priority: modify is cancel-and-replace.
type ModifyRequest struct {
	Symbol   string
	OrderID  uint64
	Price    fixed.Value
	Quantity fixed.Value
}

// RequestKind tags the closed set of mutating operations. Process
// switches over it exhaustively; there is no dynamic dispatch on the
// hot path.
type RequestKind uint8

const (
	ReqAdd RequestKind = iota
	ReqCancel
	ReqModify
)

// Request is the tagged variant carrying one of the three operations.
type Request struct {
	Kind   RequestKind
	Add    OrderRequest
	Cancel CancelRequest
	Modify ModifyRequest
}

// OrderResult reports the outcome of a submission.
type OrderResult struct {
	OrderID   uint64
	Status    OrderStatus
	Trades    []Trade
	Remaining fixed.Value
	Reason    string // set when Status == StatusRejected
}

// LevelInfo is one aggregated price level in a depth snapshot.
type LevelInfo struct {
	Price    fixed.Value
	Quantity fixed.Value
	Orders   int
}

// Depth is a read-only top-of-book snapshot. It is taken without
// blocking matching and is eventually consistent within microseconds:
// quantities are never negative and never double-counted, but a level
// may be observed mid-update.
type Depth struct {
	Symbol    string
	Bids      []LevelInfo
	Asks      []LevelInfo
	Sequence  uint64
	Timestamp time.Time
}

// EventType tags book output events.
type EventType uint8

const (
	EventOrderAccepted EventType = iota
	EventOrderRejected
	EventTradeExecuted
	EventBookUpdated
	EventOrderCancelled
)

func (t EventType) String() string {
	switch t {
	case EventOrderAccepted:
		return "order_accepted"
	case EventOrderRejected:
		return "order_rejected"
	case EventTradeExecuted:
		return "trade_executed"
	case EventBookUpdated:
		return "book_updated"
	case EventOrderCancelled:
		return "order_cancelled"
	default:
		return "unknown"
	}
}

// Event is published to external collaborators (risk, market data,
// persistence) after the book mutation completes; it is never a
// synchronous call into them.
type Event struct {
	Type      EventType
	Symbol    string
	OrderID   uint64
	Trade     *Trade
	BestBid   fixed.Value // zero when the side is empty
	BestAsk   fixed.Value
	Reason    string
	Timestamp time.Time
}
