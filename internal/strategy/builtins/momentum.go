// Package builtins provides built-in strategy implementations that ship with
// the tradelab platform.
package builtins

import (
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Momentum)(nil)

// Momentum implements a Qullamaggie-style momentum breakout strategy. It
// scores a symbol 0–1 on five weighted criteria (proximity to the trailing
// high, volume confirmation, position versus the long moving average, recent
// returns, and regression trend strength) and signals BUY on confirmed
// breakouts, SELL on durably weakening momentum.
type Momentum struct {
	lookback       int     // trailing high / volume average window
	maPeriod       int     // long simple moving average window
	minVolumeRatio float64 // full volume-confirmation threshold
	buyThreshold   float64 // minimum score for a BUY
	sellThreshold  float64 // score below which momentum is considered weak
}

// NewMomentum creates a Momentum strategy with the standard parameters:
// 20-bar lookback, 50-bar moving average, 1.5x volume confirmation.
func NewMomentum() *Momentum {
	return &Momentum{
		lookback:       20,
		maPeriod:       50,
		minVolumeRatio: 1.5,
		buyThreshold:   0.8,
		sellThreshold:  0.4,
	}
}

// Name returns "qullamaggie-momentum".
func (m *Momentum) Name() string { return "qullamaggie-momentum" }

// MinHistory returns the number of bars required before Evaluate produces
// anything other than an insufficient-data HOLD.
func (m *Momentum) MinHistory() int {
	return max(m.lookback, m.maPeriod)
}

// Score computes the composite momentum score for the final bar of the given
// history. Windows shrink to the available history, so the score is defined
// (and stays within [0,1]) for any non-empty input.
//
// Weights: 0.30 trailing-high proximity, 0.25/0.15 volume confirmation,
// 0.20 above long MA, 0.15 recent returns, 0.10 x trend strength.
func (m *Momentum) Score(bars []domain.Bar) float64 {
	n := len(bars)
	if n == 0 {
		return 0
	}

	cur := bars[n-1]
	score := 0.0

	// Within 1% of the trailing high.
	look := min(m.lookback, n)
	if cur.High >= highestHigh(bars[n-look:])*0.99 {
		score += 0.30
	}

	// Volume confirmation against the trailing average.
	switch vr := m.VolumeRatio(bars); {
	case vr >= m.minVolumeRatio:
		score += 0.25
	case vr >= 1.2:
		score += 0.15
	}

	// Close above the long simple moving average.
	maN := min(m.maPeriod, n)
	if cur.Close > meanClose(bars[n-maN:]) {
		score += 0.20
	}

	// Recent momentum: mean of the last 5 daily returns above 2%.
	if meanRecentReturn(bars, 5) > 0.02 {
		score += 0.15
	}

	score += m.TrendStrength(bars) * 0.10

	if score > 1 {
		score = 1
	}
	return score
}

// VolumeRatio returns the final bar's volume relative to the trailing
// average volume. With fewer than lookback+1 bars the ratio is neutral (1.0).
func (m *Momentum) VolumeRatio(bars []domain.Bar) float64 {
	n := len(bars)
	if n < m.lookback+1 {
		return 1.0
	}

	var sum float64
	for _, b := range bars[n-m.lookback:] {
		sum += float64(b.Volume)
	}
	avg := sum / float64(m.lookback)
	if avg <= 0 {
		return 1.0
	}
	return float64(bars[n-1].Volume) / avg
}

// TrendStrength fits a least-squares line through the last 10 closes and
// returns the slope normalized by the mean close, scaled x100 and clamped to
// [0,1]. Histories shorter than 10 bars score 0.
func (m *Momentum) TrendStrength(bars []domain.Bar) float64 {
	const window = 10
	if len(bars) < window {
		return 0
	}

	recent := bars[len(bars)-window:]
	var sumX, sumY, sumXY, sumXX float64
	for i, b := range recent {
		x := float64(i)
		sumX += x
		sumY += b.Close
		sumXY += x * b.Close
		sumXX += x * x
	}

	nf := float64(window)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (nf*sumXY - sumX*sumY) / denom

	avg := sumY / nf
	if avg <= 0 {
		return 0
	}

	strength := slope / avg * 100
	if strength < 0 {
		return 0
	}
	if strength > 1 {
		return 1
	}
	return strength
}

// StopLoss computes a protective stop for the final bar: 2% below the recent
// 5-bar low, but never more than 8% below the current close. With fewer than
// 5 bars it falls back to 5% below the close.
func (m *Momentum) StopLoss(bars []domain.Bar) float64 {
	n := len(bars)
	cur := bars[n-1].Close
	if n < 5 {
		return cur * 0.95
	}

	stop := lowestLow(bars[n-5:]) * 0.98
	if maxDistance := cur * 0.08; cur-stop > maxDistance {
		stop = cur - maxDistance
	}
	return stop
}

// Target computes the profit target for an entry: a 5–15% band scaled by
// momentum strength.
func (m *Momentum) Target(entry, score float64) float64 {
	return entry * (1 + 0.05 + score*0.10)
}

// Evaluate generates a trading signal for the final bar of the history.
//
//   - BUY when the score reaches the buy threshold and the close confirms a
//     breakout above the 5-bar trailing high; stop-loss and target attached.
//   - SELL when the score is weak and a rescore over only the trailing 5
//     bars confirms the weakness is not a single noisy bar.
//   - HOLD otherwise, carrying the score as confidence.
func (m *Momentum) Evaluate(bars []domain.Bar) domain.Signal {
	var symbol string
	if len(bars) > 0 {
		symbol = bars[len(bars)-1].Symbol
	}

	if len(bars) < m.MinHistory() {
		return domain.Signal{
			Symbol: symbol,
			Type:   domain.SignalHold,
			Reason: "insufficient data",
		}
	}

	score := m.Score(bars)
	cur := bars[len(bars)-1].Close

	if score >= m.buyThreshold {
		// Require the close itself to confirm the breakout, not just the score.
		if cur >= highestHigh(bars[len(bars)-5:])*0.99 {
			return domain.Signal{
				Symbol:     symbol,
				Type:       domain.SignalBuy,
				Confidence: score,
				Reason:     fmt.Sprintf("strong momentum breakout (score %.2f)", score),
				StopLoss:   m.StopLoss(bars),
				Target:     m.Target(cur, score),
			}
		}
	} else if score < m.sellThreshold && len(bars) > 10 {
		// Rescore the trailing 5 bars only; a single weak bar won't confirm.
		if m.Score(bars[len(bars)-5:]) < 0.3 {
			return domain.Signal{
				Symbol:     symbol,
				Type:       domain.SignalSell,
				Confidence: 0.7,
				Reason:     "momentum weakening",
			}
		}
	}

	return domain.Signal{
		Symbol:     symbol,
		Type:       domain.SignalHold,
		Confidence: score,
		Reason:     "waiting for better setup",
	}
}

// ---------------------------------------------------------------------------
// Window helpers
// ---------------------------------------------------------------------------

func highestHigh(bars []domain.Bar) float64 {
	var hi float64
	for _, b := range bars {
		if b.High > hi {
			hi = b.High
		}
	}
	return hi
}

func lowestLow(bars []domain.Bar) float64 {
	lo := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < lo {
			lo = b.Low
		}
	}
	return lo
}

func meanClose(bars []domain.Bar) float64 {
	var sum float64
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

// meanRecentReturn averages the last n daily close-over-close returns.
// Returns 0 when the history holds fewer than two bars.
func meanRecentReturn(bars []domain.Bar, n int) float64 {
	if len(bars) < 2 {
		return 0
	}

	avail := len(bars) - 1
	if n > avail {
		n = avail
	}

	var sum float64
	for i := len(bars) - n; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev > 0 {
			sum += (bars[i].Close - prev) / prev
		}
	}
	return sum / float64(n)
}
