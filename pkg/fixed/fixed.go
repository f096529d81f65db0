// Package fixed implements the scaled-integer arithmetic used for all
// prices and quantities in the matching core. Values are int64 counts of
// 1e-8 units, so identical inputs produce identical results on every run
// and every thread; there is no floating point anywhere on the hot path.
package fixed

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// Digits is the number of fractional decimal digits carried.
	Digits = 8
	// Scale is the integer multiplier (10^Digits).
	Scale int64 = 100_000_000
)

var (
	// ErrOverflow is returned when an operation would exceed the int64
	// range. The failing operation is aborted; nothing else is.
	ErrOverflow = errors.New("fixed: arithmetic overflow")
	// ErrPrecision is returned when parsing a value with more fractional
	// digits than the book supports.
	ErrPrecision = fmt.Errorf("fixed: more than %d fractional digits", Digits)
)

// Value is a fixed-point number with 8 fractional digits.
// The zero Value is 0.
type Value int64

// Zero and One cover the constants the matching loop actually needs.
const (
	Zero Value = 0
	One  Value = Value(Scale)
	Max  Value = Value(math.MaxInt64)
)

// FromInt converts a whole number of units.
func FromInt(n int64) (Value, error) {
	if n > math.MaxInt64/Scale || n < math.MinInt64/Scale {
		return 0, ErrOverflow
	}
	return Value(n * Scale), nil
}

// FromRaw reinterprets a raw scaled integer. No range check is needed;
// every int64 is a representable Value.
func FromRaw(raw int64) Value { return Value(raw) }

// FromDecimal converts an exact decimal, rejecting values that carry more
// precision than the book supports rather than rounding them silently.
func FromDecimal(d decimal.Decimal) (Value, error) {
	scaled := d.Shift(Digits)
	if !scaled.IsInteger() {
		return 0, ErrPrecision
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Value(bi.Int64()), nil
}

// Parse converts a human decimal string such as "50000.25".
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Raw returns the underlying scaled integer.
func (v Value) Raw() int64 { return int64(v) }

// Decimal returns the exact decimal representation.
func (v Value) Decimal() decimal.Decimal {
	return decimal.New(int64(v), -Digits)
}

func (v Value) String() string { return v.Decimal().String() }

// Float64 is for display and metrics only, never for matching decisions.
func (v Value) Float64() float64 { return float64(v) / float64(Scale) }

// IsPositive reports v > 0.
func (v Value) IsPositive() bool { return v > 0 }

// Add returns v+o with an explicit overflow check.
func (v Value) Add(o Value) (Value, error) {
	sum := v + o
	if (o > 0 && sum < v) || (o < 0 && sum > v) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns v-o with an explicit overflow check.
func (v Value) Sub(o Value) (Value, error) {
	diff := v - o
	if (o < 0 && diff < v) || (o > 0 && diff > v) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// MulInt scales v by an integer factor.
func (v Value) MulInt(n int64) (Value, error) {
	if v == 0 || n == 0 {
		return 0, nil
	}
	p := int64(v) * n
	if p/n != int64(v) {
		return 0, ErrOverflow
	}
	return Value(p), nil
}

// Mul returns the fixed-point product v*o (a notional: price times
// quantity). It widens through decimal to keep the check exact.
func (v Value) Mul(o Value) (Value, error) {
	p := v.Decimal().Mul(o.Decimal()).Shift(Digits)
	bi := p.Truncate(0).BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Value(bi.Int64()), nil
}

// Min returns the smaller of a and b.
func Min(a, b Value) Value {
	if a < b {
		return a
	}
	return b
}
