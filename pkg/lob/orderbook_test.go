package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/hft/pkg/fixed"
)

// rest places an order directly on the book, bypassing the engine.
func rest(t *testing.T, b *Book, id uint64, side Side, price, qty string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, o := b.slab.alloc()
	*o = Order{
		ID:       id,
		Symbol:   b.symbol,
		Side:     side,
		Price:    fixed.MustParse(price),
		Quantity: fixed.MustParse(qty),
		Seq:      id,
	}
	o.setStatus(StatusResting)
	b.insertResting(idx, o)
}

func TestBookBestPrices(t *testing.T) {
	b := NewBook("BTC-USD")

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	rest(t, b, 1, Buy, "50000", "1")
	rest(t, b, 2, Buy, "50001", "1")
	rest(t, b, 3, Sell, "50003", "1")
	rest(t, b, 4, Sell, "50002", "1")

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("50001"), bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("50002"), ask)
}

func TestBookSideOrdering(t *testing.T) {
	b := NewBook("ETH-USD")
	rest(t, b, 1, Buy, "3000", "1")
	rest(t, b, 2, Buy, "3002", "1")
	rest(t, b, 3, Buy, "3001", "1")
	rest(t, b, 4, Sell, "3010", "1")
	rest(t, b, 5, Sell, "3008", "1")
	rest(t, b, 6, Sell, "3009", "1")

	wantBids := []string{"3002", "3001", "3000"}
	for i, p := range b.bids.prices {
		assert.Equal(t, fixed.MustParse(wantBids[i]), p)
	}
	wantAsks := []string{"3008", "3009", "3010"}
	for i, p := range b.asks.prices {
		assert.Equal(t, fixed.MustParse(wantAsks[i]), p)
	}
}

func TestBookSpreadAndMid(t *testing.T) {
	b := NewBook("BTC-USD")

	_, ok := b.Spread()
	assert.False(t, ok)

	rest(t, b, 1, Buy, "50000", "1")
	_, ok = b.Spread()
	assert.False(t, ok, "one-sided book has no spread")

	rest(t, b, 2, Sell, "50010", "1")
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("10"), spread)

	mid, ok := b.MidPrice()
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("50005"), mid)
}

func TestBookDepth(t *testing.T) {
	b := NewBook("BTC-USD")
	rest(t, b, 1, Buy, "50000", "1")
	rest(t, b, 2, Buy, "50000", "2")
	rest(t, b, 3, Buy, "49999", "1")
	rest(t, b, 4, Sell, "50001", "5")

	d := b.Depth(0)
	require.Len(t, d.Bids, 2)
	require.Len(t, d.Asks, 1)

	// Same-price orders aggregate into one level.
	assert.Equal(t, fixed.MustParse("50000"), d.Bids[0].Price)
	assert.Equal(t, fixed.MustParse("3"), d.Bids[0].Quantity)
	assert.Equal(t, 2, d.Bids[0].Orders)

	top := b.Depth(1)
	assert.Len(t, top.Bids, 1)
	assert.Len(t, top.Asks, 1)

	snap := b.Snapshot()
	assert.Equal(t, d.Bids, snap.Bids)
	assert.Equal(t, d.Asks, snap.Asks)
}

func TestBookUnlinkAdvancesBest(t *testing.T) {
	b := NewBook("BTC-USD")
	rest(t, b, 1, Buy, "50001", "1")
	rest(t, b, 2, Buy, "50000", "1")

	b.mu.Lock()
	idx := b.orders[1]
	o := b.slab.get(idx)
	o.setStatus(StatusCancelled)
	b.unlink(idx, o)
	b.mu.Unlock()

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("50000"), bid)
	assert.Equal(t, 1, b.RestingOrders())

	// Last order out clears the cache entirely.
	b.mu.Lock()
	idx = b.orders[2]
	o = b.slab.get(idx)
	o.setStatus(StatusCancelled)
	b.unlink(idx, o)
	b.mu.Unlock()

	_, ok = b.BestBid()
	assert.False(t, ok)
	assert.Equal(t, 0, b.slab.inUse())
}

func TestBookTotalVolume(t *testing.T) {
	b := NewBook("BTC-USD")
	rest(t, b, 1, Buy, "50000", "1.5")
	rest(t, b, 2, Buy, "49999", "2.5")
	rest(t, b, 3, Sell, "50001", "3")

	assert.Equal(t, fixed.MustParse("4"), b.TotalVolume(Buy))
	assert.Equal(t, fixed.MustParse("3"), b.TotalVolume(Sell))
}

func TestBookVerifyUncrossed(t *testing.T) {
	b := NewBook("BTC-USD")
	rest(t, b, 1, Buy, "50000", "1")
	rest(t, b, 2, Sell, "50001", "1")
	assert.NoError(t, b.verifyUncrossed())

	rest(t, b, 3, Sell, "49999", "1")
	assert.ErrorIs(t, b.verifyUncrossed(), ErrCrossedBook)
}

func TestBookOrderLookup(t *testing.T) {
	b := NewBook("BTC-USD")
	rest(t, b, 7, Buy, "50000", "1")

	o, ok := b.Order(7)
	require.True(t, ok)
	assert.Equal(t, fixed.MustParse("50000"), o.Price)
	assert.Equal(t, StatusResting, o.Status())

	_, ok = b.Order(8)
	assert.False(t, ok)
}
