package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/hft/pkg/fixed"
)

type slowChecker struct {
	delay time.Duration
	err   error
}

func (c *slowChecker) Check(ctx context.Context, _ OrderInfo) error {
	select {
	case <-time.After(c.delay):
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestConsultantApproves(t *testing.T) {
	c := NewConsultant(&slowChecker{}, 100*time.Millisecond, FailClosed, nil)
	assert.NoError(t, c.Consult(context.Background(), OrderInfo{Symbol: "BTC-USD"}))
	assert.Equal(t, uint64(0), c.Timeouts())
}

func TestConsultantPropagatesRejection(t *testing.T) {
	want := errors.New("position limit breached")
	c := NewConsultant(&slowChecker{err: want}, 100*time.Millisecond, FailClosed, nil)
	assert.ErrorIs(t, c.Consult(context.Background(), OrderInfo{}), want)
}

func TestConsultantTimeoutFailClosed(t *testing.T) {
	c := NewConsultant(&slowChecker{delay: time.Second}, time.Millisecond, FailClosed, nil)
	err := c.Consult(context.Background(), OrderInfo{Symbol: "BTC-USD"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), c.Timeouts())
}

func TestConsultantTimeoutFailOpen(t *testing.T) {
	c := NewConsultant(&slowChecker{delay: time.Second}, time.Millisecond, FailOpen, nil)
	assert.NoError(t, c.Consult(context.Background(), OrderInfo{Symbol: "BTC-USD"}))
	assert.Equal(t, uint64(1), c.Timeouts())
}

func TestNilConsultantApproves(t *testing.T) {
	var c *Consultant
	assert.NoError(t, c.Consult(context.Background(), OrderInfo{}))
	assert.Equal(t, uint64(0), c.Timeouts())
}

func TestParseTimeoutPolicy(t *testing.T) {
	assert.Equal(t, FailOpen, ParseTimeoutPolicy("fail-open"))
	assert.Equal(t, FailClosed, ParseTimeoutPolicy("fail-closed"))
	assert.Equal(t, FailClosed, ParseTimeoutPolicy("bogus"))
}

func TestLimitsOrderSize(t *testing.T) {
	l := NewLimits()
	l.MaxOrderSize = fixed.MustParse("10")

	assert.NoError(t, l.Check(context.Background(), OrderInfo{Quantity: fixed.MustParse("10")}))
	assert.Error(t, l.Check(context.Background(), OrderInfo{Quantity: fixed.MustParse("10.00000001")}))
}

func TestLimitsPriceBand(t *testing.T) {
	l := NewLimits()
	l.MinPrice = fixed.MustParse("100")
	l.MaxPrice = fixed.MustParse("200")

	assert.NoError(t, l.Check(context.Background(), OrderInfo{Price: fixed.MustParse("150")}))
	assert.Error(t, l.Check(context.Background(), OrderInfo{Price: fixed.MustParse("99")}))
	assert.Error(t, l.Check(context.Background(), OrderInfo{Price: fixed.MustParse("201")}))
}

func TestLimitsNotional(t *testing.T) {
	l := NewLimits()
	l.MaxNotional = fixed.MustParse("1000000")

	ok := OrderInfo{Price: fixed.MustParse("50000"), Quantity: fixed.MustParse("20")}
	assert.NoError(t, l.Check(context.Background(), ok))

	over := OrderInfo{Price: fixed.MustParse("50000"), Quantity: fixed.MustParse("21")}
	assert.Error(t, l.Check(context.Background(), over))
}

func TestLimitsExposure(t *testing.T) {
	l := NewLimits()
	l.MaxExposure = fixed.MustParse("100")

	info := OrderInfo{Owner: "alice", Price: fixed.MustParse("10"), Quantity: fixed.MustParse("4")}
	require.NoError(t, l.Check(context.Background(), info)) // 40
	require.NoError(t, l.Check(context.Background(), info)) // 80
	assert.Error(t, l.Check(context.Background(), info))    // would be 120
	assert.Equal(t, fixed.MustParse("80"), l.Exposure("alice"))

	l.Release("alice", fixed.MustParse("40"))
	assert.NoError(t, l.Check(context.Background(), info))

	// Release floors at zero.
	l.Release("alice", fixed.MustParse("10000"))
	assert.Equal(t, fixed.Zero, l.Exposure("alice"))
}

func TestNotionalSaturates(t *testing.T) {
	info := OrderInfo{Price: fixed.Max, Quantity: fixed.Max}
	assert.Equal(t, fixed.Max, info.Notional())
}
