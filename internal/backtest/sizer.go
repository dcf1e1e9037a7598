package backtest

import "math"

// Sizer computes position sizes from a fixed-fractional risk model: risk a
// fraction of capital per trade based on the distance to the stop, capped at
// a fraction of capital per position.
type Sizer struct {
	// RiskFraction is the share of capital put at risk between the quoted
	// price and the stop loss on each trade.
	RiskFraction float64

	// CapFraction bounds the notional value of any single position as a
	// share of capital.
	CapFraction float64
}

// NewSizer returns a Sizer with the given fractions. Non-positive inputs
// fall back to the defaults of 2% risk and 10% position cap.
func NewSizer(riskFraction, capFraction float64) *Sizer {
	if riskFraction <= 0 {
		riskFraction = 0.02
	}
	if capFraction <= 0 {
		capFraction = 0.10
	}
	return &Sizer{RiskFraction: riskFraction, CapFraction: capFraction}
}

// Shares returns the number of whole shares to buy given available capital,
// the quoted market price, the expected fill price after costs, and the stop
// loss. It returns 0 when no affordable size exists.
//
// A stop at or above the quoted price would produce a non-positive risk per
// share; in that case risk per share falls back to 2% of the quoted price so
// a malformed stop cannot produce an unbounded size.
func (s *Sizer) Shares(capital, quoted, entry, stop float64) int64 {
	if capital <= 0 || quoted <= 0 || entry <= 0 {
		return 0
	}

	riskPerShare := quoted - stop
	if riskPerShare <= 0 {
		riskPerShare = quoted * 0.02
	}

	byRisk := int64(math.Floor(capital * s.RiskFraction / riskPerShare))
	byCap := int64(math.Floor(capital * s.CapFraction / quoted))

	shares := byRisk
	if byCap < shares {
		shares = byCap
	}
	if shares <= 0 {
		return 0
	}

	// Keep a cash buffer: never commit more than 95% of capital to a fill.
	if float64(shares)*entry > capital*0.95 {
		return 0
	}
	return shares
}
