// Package risk hosts the pre-trade risk collaborator. The matching path
// consults it asynchronously with a bounded wait so a slow or wedged
// checker can never stall the book.
package risk

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/hft/pkg/fixed"
)

// ErrTimeout is returned (under FailClosed) when the checker does not
// answer within the budget.
var ErrTimeout = errors.New("risk check timed out")

// TimeoutPolicy decides the outcome when the checker misses the budget.
type TimeoutPolicy uint8

const (
	// FailClosed rejects the order on timeout. An unresponsive risk
	// system means risk state is unknown, and accepting unknown risk is
	// the one failure mode this component exists to prevent.
	FailClosed TimeoutPolicy = iota
	// FailOpen accepts the order on timeout.
	FailOpen
)

func (p TimeoutPolicy) String() string {
	if p == FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}

// ParseTimeoutPolicy maps a config string to a policy; unknown values
// fall back to FailClosed.
func ParseTimeoutPolicy(s string) TimeoutPolicy {
	if s == "fail-open" {
		return FailOpen
	}
	return FailClosed
}

// OrderInfo carries the order fields a checker needs. It deliberately
// avoids importing the book package.
type OrderInfo struct {
	Symbol   string
	Buy      bool
	Price    fixed.Value
	Quantity fixed.Value
	Owner    string
}

// Notional returns price times quantity, saturating on overflow rather
// than failing: a saturated notional only makes limits stricter.
func (o OrderInfo) Notional() fixed.Value {
	n, err := o.Price.Mul(o.Quantity)
	if err != nil {
		return fixed.Max
	}
	return n
}

// Checker answers pre-trade checks. A nil error approves the order.
// Implementations may block; the consultant enforces the budget.
type Checker interface {
	Check(ctx context.Context, info OrderInfo) error
}

// Consultant wraps a Checker with the wait budget and timeout policy.
type Consultant struct {
	checker Checker
	budget  time.Duration
	policy  TimeoutPolicy
	logger  log.Logger

	timeouts uint64 // atomic
}

// NewConsultant builds a consultant. A nil checker approves everything.
func NewConsultant(checker Checker, budget time.Duration, policy TimeoutPolicy, logger log.Logger) *Consultant {
	if budget <= 0 {
		budget = 100 * time.Microsecond
	}
	return &Consultant{
		checker: checker,
		budget:  budget,
		policy:  policy,
		logger:  logger,
	}
}

// Consult runs the check with the configured budget. Nil receiver and
// nil checker both approve, so the engine can run without a risk system
// wired in.
func (c *Consultant) Consult(ctx context.Context, info OrderInfo) error {
	if c == nil || c.checker == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.checker.Check(ctx, info)
	}()

	t := time.NewTimer(c.budget)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
	}

	atomic.AddUint64(&c.timeouts, 1)
	if c.policy == FailOpen {
		if c.logger != nil {
			c.logger.Warn("risk check timed out, accepting per fail-open policy",
				"symbol", info.Symbol, "owner", info.Owner)
		}
		return nil
	}
	if c.logger != nil {
		c.logger.Warn("risk check timed out, rejecting",
			"symbol", info.Symbol, "owner", info.Owner)
	}
	return ErrTimeout
}

// Timeouts reports how many consultations have missed the budget.
func (c *Consultant) Timeouts() uint64 {
	if c == nil {
		return 0
	}
	return atomic.LoadUint64(&c.timeouts)
}
