package fixed

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1", Scale},
		{"50000.25", 50000*Scale + 25_000_000},
		{"0.00000001", 1},
		{"-2.5", -250_000_000},
	}
	for _, c := range cases {
		v, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, v.Raw(), c.in)
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("1.000000001") // 9 fractional digits
	assert.ErrorIs(t, err, ErrPrecision)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestFromDecimalOverflow(t *testing.T) {
	d := decimal.New(math.MaxInt64, 0) // MaxInt64 whole units
	_, err := FromDecimal(d)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.1", "0.2", "0.3", "123456.78901234"} {
		v := MustParse(s)
		assert.Equal(t, s, v.String())
	}
}

func TestAdditionIsExact(t *testing.T) {
	// The classic float failure: 0.1 + 0.2 must be exactly 0.3.
	sum, err := MustParse("0.1").Add(MustParse("0.2"))
	require.NoError(t, err)
	assert.Equal(t, MustParse("0.3"), sum)
}

func TestAddOverflow(t *testing.T) {
	_, err := Max.Add(One)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := Max.Add(-One)
	require.NoError(t, err)
	assert.Equal(t, Max-One, v)
}

func TestSubOverflow(t *testing.T) {
	_, err := Value(math.MinInt64).Sub(One)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulInt(t *testing.T) {
	v, err := MustParse("1.5").MulInt(4)
	require.NoError(t, err)
	assert.Equal(t, MustParse("6"), v)

	_, err = Max.MulInt(2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulNotional(t *testing.T) {
	n, err := MustParse("50000.25").Mul(MustParse("0.5"))
	require.NoError(t, err)
	assert.Equal(t, MustParse("25000.125"), n)

	_, err = Max.Mul(Max)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMin(t *testing.T) {
	assert.Equal(t, One, Min(One, Max))
	assert.Equal(t, One, Min(Max, One))
}

func TestFromInt(t *testing.T) {
	v, err := FromInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42*Scale, v.Raw())

	_, err = FromInt(math.MaxInt64 / 10)
	assert.ErrorIs(t, err, ErrOverflow)
}
