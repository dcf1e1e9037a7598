package backtest

import (
	"math"

	"tradelab/internal/domain"
)

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// Report is the full set of performance statistics for one run.
type Report struct {
	InitialCapital float64
	FinalValue     float64
	TotalReturnPct float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64
	AvgWin        float64
	AvgLoss       float64

	// ProfitFactor is |avg win / avg loss|. +Inf when there are wins and no
	// losses; 0 when nothing won or lost money.
	ProfitFactor float64

	SharpeRatio    float64
	VolatilityPct  float64
	MaxDrawdownPct float64 // negative or zero

	AvgHoldingDays float64
	MaxHoldingDays int
	MinHoldingDays int
}

// Analyze derives performance statistics from a simulation result. It is
// safe on results with no trades: all trade statistics come back zero.
func Analyze(res *Result) *Report {
	r := &Report{
		InitialCapital: res.InitialCapital,
		FinalValue:     res.FinalCash,
	}
	if res.InitialCapital > 0 {
		r.TotalReturnPct = (res.FinalCash - res.InitialCapital) / res.InitialCapital * 100
	}

	r.TotalTrades = len(res.Trades)
	if r.TotalTrades > 0 {
		var winSum, lossSum float64
		holdSum := 0
		r.MinHoldingDays = res.Trades[0].HoldingDays
		for _, t := range res.Trades {
			// Break-even trades count toward neither side.
			switch {
			case t.Profit > 0:
				r.WinningTrades++
				winSum += t.Profit
			case t.Profit < 0:
				r.LosingTrades++
				lossSum += t.Profit
			}
			holdSum += t.HoldingDays
			if t.HoldingDays > r.MaxHoldingDays {
				r.MaxHoldingDays = t.HoldingDays
			}
			if t.HoldingDays < r.MinHoldingDays {
				r.MinHoldingDays = t.HoldingDays
			}
		}
		r.WinRatePct = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
		r.AvgHoldingDays = float64(holdSum) / float64(r.TotalTrades)
		if r.WinningTrades > 0 {
			r.AvgWin = winSum / float64(r.WinningTrades)
		}
		if r.LosingTrades > 0 {
			r.AvgLoss = lossSum / float64(r.LosingTrades)
		}
		switch {
		case r.LosingTrades == 0 && r.WinningTrades > 0:
			r.ProfitFactor = math.Inf(1)
		case r.LosingTrades > 0:
			r.ProfitFactor = math.Abs(r.AvgWin / r.AvgLoss)
		}
	}

	mean, std := meanStd(res.DailyReturns)
	if std > 0 {
		r.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
	}
	r.VolatilityPct = std * math.Sqrt(tradingDaysPerYear) * 100
	r.MaxDrawdownPct = maxDrawdown(res.EquityCurve)
	return r
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

// maxDrawdown is the deepest peak-to-trough decline of the equity curve,
// expressed as a non-positive percentage. Fewer than two samples yield 0.
func maxDrawdown(curve []domain.EquitySample) float64 {
	if len(curve) < 2 {
		return 0
	}
	peak := curve[0].Value
	worst := 0.0
	for _, s := range curve[1:] {
		if s.Value > peak {
			peak = s.Value
			continue
		}
		if peak > 0 {
			dd := (s.Value - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst * 100
}
