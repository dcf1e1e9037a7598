package backtest

import (
	"math"
	"strings"
	"testing"
	"time"

	"tradelab/internal/domain"
)

func sample(i int, value float64) domain.EquitySample {
	return domain.EquitySample{
		Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Value: value,
		Cash:  value,
	}
}

func TestAnalyzeNoTrades(t *testing.T) {
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10000,
		EquityCurve:    []domain.EquitySample{sample(0, 10000), sample(1, 10000)},
		DailyReturns:   []float64{0},
	}
	r := Analyze(res)

	if r.TotalTrades != 0 || r.WinRatePct != 0 || r.ProfitFactor != 0 {
		t.Errorf("trade stats = %d/%v/%v, want all zero", r.TotalTrades, r.WinRatePct, r.ProfitFactor)
	}
	if r.TotalReturnPct != 0 {
		t.Errorf("TotalReturnPct = %v, want 0", r.TotalReturnPct)
	}
	if r.AvgHoldingDays != 0 || r.MaxHoldingDays != 0 || r.MinHoldingDays != 0 {
		t.Errorf("holding stats = %v/%d/%d, want zero", r.AvgHoldingDays, r.MaxHoldingDays, r.MinHoldingDays)
	}
	if r.SharpeRatio != 0 || r.VolatilityPct != 0 || r.MaxDrawdownPct != 0 {
		t.Errorf("risk stats = %v/%v/%v, want zero", r.SharpeRatio, r.VolatilityPct, r.MaxDrawdownPct)
	}
}

func TestAnalyzeTradeStats(t *testing.T) {
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10900,
		Trades: []domain.Trade{
			{Profit: 600, HoldingDays: 10},
			{Profit: 800, HoldingDays: 30},
			{Profit: -500, HoldingDays: 5},
		},
	}
	r := Analyze(res)

	if r.TotalTrades != 3 || r.WinningTrades != 2 || r.LosingTrades != 1 {
		t.Fatalf("counts = %d/%d/%d", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	}
	if math.Abs(r.WinRatePct-100.0*2/3) > 1e-9 {
		t.Errorf("WinRatePct = %v", r.WinRatePct)
	}
	if r.AvgWin != 700 || r.AvgLoss != -500 {
		t.Errorf("AvgWin/AvgLoss = %v/%v, want 700/-500", r.AvgWin, r.AvgLoss)
	}
	if math.Abs(r.ProfitFactor-1.4) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 1.4", r.ProfitFactor)
	}
	if math.Abs(r.TotalReturnPct-9) > 1e-9 {
		t.Errorf("TotalReturnPct = %v, want 9", r.TotalReturnPct)
	}
	if r.AvgHoldingDays != 15 || r.MaxHoldingDays != 30 || r.MinHoldingDays != 5 {
		t.Errorf("holding stats = %v/%d/%d, want 15/30/5", r.AvgHoldingDays, r.MaxHoldingDays, r.MinHoldingDays)
	}
}

func TestAnalyzeBreakEvenTrades(t *testing.T) {
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10300,
		Trades: []domain.Trade{
			{Profit: 600, HoldingDays: 10},
			{Profit: 0, HoldingDays: 4},
			{Profit: -300, HoldingDays: 2},
		},
	}
	r := Analyze(res)

	// A break-even trade is neither a win nor a loss.
	if r.TotalTrades != 3 || r.WinningTrades != 1 || r.LosingTrades != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/1/1", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	}
	if r.AvgWin != 600 || r.AvgLoss != -300 {
		t.Errorf("AvgWin/AvgLoss = %v/%v, want 600/-300", r.AvgWin, r.AvgLoss)
	}
	if math.Abs(r.ProfitFactor-2.0) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 2", r.ProfitFactor)
	}

	onlyBreakEven := &Result{
		InitialCapital: 10000,
		FinalCash:      10000,
		Trades:         []domain.Trade{{Profit: 0, HoldingDays: 3}},
	}
	r = Analyze(onlyBreakEven)
	if r.WinningTrades != 0 || r.LosingTrades != 0 || r.ProfitFactor != 0 {
		t.Errorf("break-even-only stats = %d/%d/%v, want 0/0/0",
			r.WinningTrades, r.LosingTrades, r.ProfitFactor)
	}
}

func TestAnalyzeProfitFactorInfinite(t *testing.T) {
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10500,
		Trades:         []domain.Trade{{Profit: 500, HoldingDays: 7}},
	}
	r := Analyze(res)
	if !math.IsInf(r.ProfitFactor, 1) {
		t.Errorf("ProfitFactor = %v, want +Inf with wins and no losses", r.ProfitFactor)
	}
	if r.WinRatePct != 100 {
		t.Errorf("WinRatePct = %v, want 100", r.WinRatePct)
	}
}

func TestAnalyzeSharpeAndVolatility(t *testing.T) {
	// Returns {0.02, 0}: mean 0.01, population std 0.01.
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10000,
		DailyReturns:   []float64{0.02, 0},
	}
	r := Analyze(res)

	wantSharpe := math.Sqrt(252)
	if math.Abs(r.SharpeRatio-wantSharpe) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", r.SharpeRatio, wantSharpe)
	}
	wantVol := 0.01 * math.Sqrt(252) * 100
	if math.Abs(r.VolatilityPct-wantVol) > 1e-9 {
		t.Errorf("VolatilityPct = %v, want %v", r.VolatilityPct, wantVol)
	}
}

func TestAnalyzeZeroStdSharpe(t *testing.T) {
	res := &Result{
		InitialCapital: 10000,
		FinalCash:      10000,
		DailyReturns:   []float64{0.01, 0.01, 0.01},
	}
	r := Analyze(res)
	if r.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 when returns have no variance", r.SharpeRatio)
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := []domain.EquitySample{
		sample(0, 100), sample(1, 120), sample(2, 90), sample(3, 110),
	}
	got := maxDrawdown(curve)
	want := (90.0 - 120.0) / 120.0 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("maxDrawdown = %v, want %v", got, want)
	}

	if dd := maxDrawdown(curve[:1]); dd != 0 {
		t.Errorf("maxDrawdown of single sample = %v, want 0", dd)
	}
	rising := []domain.EquitySample{sample(0, 100), sample(1, 110), sample(2, 120)}
	if dd := maxDrawdown(rising); dd != 0 {
		t.Errorf("maxDrawdown of rising curve = %v, want 0", dd)
	}
}

func TestReportFormat(t *testing.T) {
	r := &Report{
		InitialCapital: 10000,
		FinalValue:     11250,
		TotalReturnPct: 12.5,
		TotalTrades:    4,
		WinningTrades:  4,
		ProfitFactor:   math.Inf(1),
	}
	out := r.Format()

	for _, want := range []string{
		"BACKTEST PERFORMANCE REPORT",
		"$10000.00",
		"$11250.00",
		"12.50%",
		"inf (no losing trades)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
