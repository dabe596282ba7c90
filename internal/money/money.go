// Package money provides won-denominated arithmetic helpers built on
// shopspring/decimal, used anywhere the core rounds a price to a KRX tick
// or derives a share quantity from a sizing fraction. Plain float64 drift
// is acceptable for scores and multipliers but not for the numbers that
// end up on an order ticket.
package money

import (
	"github.com/shopspring/decimal"
)

// TickSize returns the KRX minimum price increment for the given price,
// per the exchange's price-band table (spec §4.4.1).
func TickSize(price int64) int64 {
	switch {
	case price < 1000:
		return 1
	case price < 5000:
		return 5
	case price < 10000:
		return 10
	case price < 50000:
		return 50
	case price < 100000:
		return 100
	case price < 500000:
		return 500
	default:
		return 1000
	}
}

// RoundDownToTick floors price to the nearest multiple of its tick size.
func RoundDownToTick(price int64) int64 {
	tick := TickSize(price)
	return (price / tick) * tick
}

// LimitPrice computes the tick-rounded limit price for a fallback-chain
// stage: ask1 plus nTicks ticks (sized off ask1, not the summed price),
// then floored to that tick size. See spec §4.4.1 — the tick band and
// magnitude are both evaluated against ask1.
func LimitPrice(ask1 int64, nTicks int) int64 {
	tick := TickSize(ask1)
	raw := ask1 + tick*int64(nTicks)
	return (raw / tick) * tick
}

// Fraction wraps decimal for the sizing pipeline's multiplier chain so
// repeated multiplication of 0..1-ish weights never accumulates float
// noise across the 5+ terms in final_fraction (spec §4.6.2).
type Fraction struct {
	d decimal.Decimal
}

// NewFraction builds a Fraction from a float64 multiplier.
func NewFraction(f float64) Fraction {
	return Fraction{d: decimal.NewFromFloat(f)}
}

// Mul multiplies two fractions.
func (f Fraction) Mul(other Fraction) Fraction {
	return Fraction{d: f.d.Mul(other.d)}
}

// MulFloat multiplies by a raw float64 weight.
func (f Fraction) MulFloat(w float64) Fraction {
	return Fraction{d: f.d.Mul(decimal.NewFromFloat(w))}
}

// Float64 returns the fraction as a float64.
func (f Fraction) Float64() float64 {
	v, _ := f.d.Float64()
	return v
}

// Min returns the smaller of f and cap.
func (f Fraction) Min(cap Fraction) Fraction {
	if f.d.GreaterThan(cap.d) {
		return cap
	}
	return f
}

// SharesFor derives a share quantity from total equity, a sizing
// fraction, and the current ask price: floor(equity * fraction / ask1).
func SharesFor(totalEquity float64, fraction Fraction, ask1 int64) int64 {
	equity := decimal.NewFromFloat(totalEquity)
	notional := equity.Mul(fraction.d)
	if ask1 <= 0 {
		return 0
	}
	qty := notional.Div(decimal.NewFromInt(ask1))
	return qty.IntPart()
}

// PctChange returns (current-base)/base as a float64, or 0 if base is 0.
func PctChange(current, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (current - base) / base
}
