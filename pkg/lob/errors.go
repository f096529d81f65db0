package lob

import "errors"

// Validation errors: rejected before any book mutation, no side effects.
var (
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderUnavailable = errors.New("order unavailable")
	ErrSelfTrade        = errors.New("self trade not allowed")
	ErrPostOnlyWouldTake = errors.New("post-only order would take")
	ErrFOKNotFillable   = errors.New("fill-or-kill order cannot fill completely")
	ErrRiskRejected     = errors.New("rejected by risk check")
	ErrMaxSymbols       = errors.New("maximum symbols limit reached")
	ErrSymbolExists     = errors.New("symbol already exists")
)

// Invariant violations: fatal for the affected symbol's book. Matching
// halts, a critical alert is raised and the book requires explicit
// operator recovery; it is never auto-corrected.
var (
	ErrCrossedBook = errors.New("invariant violation: crossed book")
	ErrBookHalted  = errors.New("book halted pending operator recovery")
)
