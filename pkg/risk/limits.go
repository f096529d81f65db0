package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/hft/pkg/fixed"
)

// Limits is a synchronous in-process Checker enforcing static per-order
// limits and a running per-owner exposure cap. Zero-valued limits are
// not enforced.
type Limits struct {
	MaxOrderSize fixed.Value // max quantity per order
	MaxNotional  fixed.Value // max price*quantity per order
	MinPrice     fixed.Value // price band lower bound
	MaxPrice     fixed.Value // price band upper bound
	MaxExposure  fixed.Value // max accumulated notional per owner

	mu       sync.Mutex
	exposure map[string]fixed.Value
}

// NewLimits builds a limits checker with no limits set.
func NewLimits() *Limits {
	return &Limits{exposure: make(map[string]fixed.Value)}
}

// Check enforces the configured limits. It never blocks.
func (l *Limits) Check(_ context.Context, info OrderInfo) error {
	if l.MaxOrderSize > 0 && info.Quantity > l.MaxOrderSize {
		return fmt.Errorf("order size %s exceeds limit %s", info.Quantity, l.MaxOrderSize)
	}
	if l.MinPrice > 0 && info.Price < l.MinPrice {
		return fmt.Errorf("price %s below band %s", info.Price, l.MinPrice)
	}
	if l.MaxPrice > 0 && info.Price > l.MaxPrice {
		return fmt.Errorf("price %s above band %s", info.Price, l.MaxPrice)
	}

	notional := info.Notional()
	if l.MaxNotional > 0 && notional > l.MaxNotional {
		return fmt.Errorf("notional %s exceeds limit %s", notional, l.MaxNotional)
	}

	if l.MaxExposure > 0 && info.Owner != "" {
		l.mu.Lock()
		defer l.mu.Unlock()
		next, err := l.exposure[info.Owner].Add(notional)
		if err != nil || next > l.MaxExposure {
			return fmt.Errorf("owner %s exposure limit exceeded", info.Owner)
		}
		l.exposure[info.Owner] = next
	}
	return nil
}

// Release reduces an owner's tracked exposure, floored at zero. Called
// when an order is cancelled or its notional settles.
func (l *Limits) Release(owner string, notional fixed.Value) {
	if l.MaxExposure <= 0 || owner == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.exposure[owner]
	if notional >= cur {
		delete(l.exposure, owner)
		return
	}
	l.exposure[owner] = cur - notional
}

// Exposure reports an owner's tracked exposure.
func (l *Limits) Exposure(owner string) fixed.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exposure[owner]
}
