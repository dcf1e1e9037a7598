package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/strategy/builtins"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeSource struct {
	bars map[string][]domain.Bar
}

func (f *fakeSource) Fetch(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range f.bars[symbol] {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// scriptStrategy delegates evaluation to a closure.
type scriptStrategy struct {
	fn func(history []domain.Bar) domain.Signal
}

func (s *scriptStrategy) Name() string { return "scripted" }

func (s *scriptStrategy) Evaluate(history []domain.Bar) domain.Signal {
	return s.fn(history)
}

func holdAlways(history []domain.Bar) domain.Signal {
	return domain.Signal{Symbol: history[0].Symbol, Type: domain.SignalHold}
}

// buyAt returns a strategy that emits one BUY when history reaches buyLen
// bars, with the given stop and target, and HOLD otherwise.
func buyAt(buyLen int, confidence, stop, target float64) *scriptStrategy {
	return &scriptStrategy{fn: func(history []domain.Bar) domain.Signal {
		sym := history[0].Symbol
		if len(history) == buyLen {
			return domain.Signal{
				Symbol:     sym,
				Type:       domain.SignalBuy,
				Confidence: confidence,
				StopLoss:   stop,
				Target:     target,
			}
		}
		return domain.Signal{Symbol: sym, Type: domain.SignalHold}
	}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// series builds one bar per day from closes, with high/low hugging the close.
func series(symbol string, closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol: symbol,
			Date:   day(i),
			Open:   c,
			High:   c * 1.005,
			Low:    c * 0.995,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func baseRequest(symbols ...string) Request {
	return Request{
		Symbols:        symbols,
		Start:          day(0),
		End:            day(60),
		InitialCapital: 10000,
		MaxPositions:   5,
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestRunStopLossExit(t *testing.T) {
	closes := constant(20, 100)
	closes[15] = 85 // breaches the 90 stop
	for i := 16; i < 20; i++ {
		closes[i] = 85
	}
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", closes)}}

	e := NewEngine(src, buyAt(10, 0.9, 90, 1000), NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Reason != ReasonStopLoss {
		t.Errorf("Reason = %q, want %q", tr.Reason, ReasonStopLoss)
	}
	if !tr.EntryDate.Equal(day(9)) || !tr.ExitDate.Equal(day(15)) {
		t.Errorf("trade dates = %v..%v, want day 9..15", tr.EntryDate, tr.ExitDate)
	}
	if tr.Shares != 10 {
		t.Errorf("Shares = %d, want 10", tr.Shares)
	}
	// 10 shares bought at 100, sold at 85, zero costs.
	if math.Abs(tr.Profit+150) > 1e-9 {
		t.Errorf("Profit = %v, want -150", tr.Profit)
	}
	if math.Abs(res.FinalCash-9850) > 1e-9 {
		t.Errorf("FinalCash = %v, want 9850", res.FinalCash)
	}
}

func TestRunTakeProfitExit(t *testing.T) {
	closes := constant(20, 100)
	for i := 15; i < 20; i++ {
		closes[i] = 115 // clears the 110 target
	}
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", closes)}}

	e := NewEngine(src, buyAt(10, 0.9, 90, 110), NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Reason != ReasonTakeProfit {
		t.Errorf("Reason = %q, want %q", tr.Reason, ReasonTakeProfit)
	}
	if math.Abs(tr.Profit-150) > 1e-9 {
		t.Errorf("Profit = %v, want 150", tr.Profit)
	}
}

func TestRunSellSignalPassesReason(t *testing.T) {
	strat := &scriptStrategy{fn: func(history []domain.Bar) domain.Signal {
		sym := history[0].Symbol
		switch len(history) {
		case 10:
			return domain.Signal{Symbol: sym, Type: domain.SignalBuy, Confidence: 0.9, StopLoss: 50, Target: 1000}
		case 14:
			return domain.Signal{Symbol: sym, Type: domain.SignalSell, Confidence: 0.7, Reason: "momentum weakening"}
		}
		return domain.Signal{Symbol: sym, Type: domain.SignalHold}
	}}
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", constant(20, 100))}}

	e := NewEngine(src, strat, NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if res.Trades[0].Reason != "momentum weakening" {
		t.Errorf("Reason = %q, want signal reason passed through", res.Trades[0].Reason)
	}
	if !res.Trades[0].ExitDate.Equal(day(13)) {
		t.Errorf("ExitDate = %v, want day 13", res.Trades[0].ExitDate)
	}
}

func TestRunNeverBuysFlatCurve(t *testing.T) {
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", constant(30, 100))}}

	e := NewEngine(src, &scriptStrategy{fn: holdAlways}, NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(res.Trades))
	}
	if res.FinalCash != res.InitialCapital {
		t.Errorf("FinalCash = %v, want untouched capital %v", res.FinalCash, res.InitialCapital)
	}
	if len(res.EquityCurve) != 30 {
		t.Fatalf("got %d equity samples, want 30", len(res.EquityCurve))
	}
	for i, s := range res.EquityCurve {
		if s.Value != res.InitialCapital {
			t.Fatalf("equity[%d] = %v, want flat at %v", i, s.Value, res.InitialCapital)
		}
	}
	for i, r := range res.DailyReturns {
		if r != 0 {
			t.Fatalf("daily return[%d] = %v, want 0", i, r)
		}
	}
}

func TestRunForceCloseAtEnd(t *testing.T) {
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", constant(20, 100))}}

	e := NewEngine(src, buyAt(10, 0.9, 50, 1000), NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Reason != ReasonEnded {
		t.Errorf("Reason = %q, want %q", tr.Reason, ReasonEnded)
	}
	if !tr.ExitDate.Equal(day(19)) {
		t.Errorf("ExitDate = %v, want final bar day 19", tr.ExitDate)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if last.Value != res.FinalCash || last.Cash != res.FinalCash {
		t.Errorf("final sample = %+v, want liquidated cash %v", last, res.FinalCash)
	}
}

func TestRunEquityReconcilesWithCosts(t *testing.T) {
	closes := constant(25, 100)
	for i := 12; i < 18; i++ {
		closes[i] = 108
	}
	for i := 18; i < 25; i++ {
		closes[i] = 92
	}
	src := &fakeSource{bars: map[string][]domain.Bar{"AAPL": series("AAPL", closes)}}

	req := baseRequest("AAPL")
	req.Commission = 0.001
	req.Slippage = 0.0005

	e := NewEngine(src, buyAt(8, 0.9, 95, 105), NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected at least one trade")
	}

	var profit float64
	for _, tr := range res.Trades {
		profit += tr.Profit
	}
	want := res.InitialCapital + profit
	if math.Abs(res.FinalCash-want)/want > 1e-9 {
		t.Errorf("FinalCash = %v, want initial + profits = %v", res.FinalCash, want)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if math.Abs(last.Value-want)/want > 1e-9 {
		t.Errorf("final equity = %v, want %v", last.Value, want)
	}

	// Entry fills above and exit fills below the quoted close.
	tr := res.Trades[0]
	if tr.EntryPrice <= 100 {
		t.Errorf("EntryPrice = %v, want above quoted 100", tr.EntryPrice)
	}
	if tr.Reason == ReasonTakeProfit && tr.ExitPrice >= 108 {
		t.Errorf("ExitPrice = %v, want below quoted close 108", tr.ExitPrice)
	}
}

func TestRunMaxPositionsAndCash(t *testing.T) {
	buyEverything := &scriptStrategy{fn: func(history []domain.Bar) domain.Signal {
		return domain.Signal{
			Symbol:     history[0].Symbol,
			Type:       domain.SignalBuy,
			Confidence: 0.9,
			StopLoss:   50,
			Target:     1e9,
		}
	}}

	bars := make(map[string][]domain.Bar)
	syms := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	for _, sym := range syms {
		bars[sym] = series(sym, constant(20, 100))
	}
	src := &fakeSource{bars: bars}

	req := baseRequest(syms...)
	req.MaxPositions = 3

	e := NewEngine(src, buyEverything, NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// All exits happen at the end, so the trade count is the position count.
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want MaxPositions = 3", len(res.Trades))
	}
	// Equal confidence resolves lexically.
	got := map[string]bool{}
	for _, tr := range res.Trades {
		got[tr.Symbol] = true
	}
	for _, want := range []string{"AAA", "BBB", "CCC"} {
		if !got[want] {
			t.Errorf("symbol %s not traded; trades favor lexical order on ties", want)
		}
	}
	for i, s := range res.EquityCurve {
		if s.Cash < 0 {
			t.Fatalf("cash went negative at sample %d: %v", i, s.Cash)
		}
	}
}

func TestRunMomentumBuyThenStopLoss(t *testing.T) {
	// Rising 2.5%/day closes score 0.75 and hold; the volume spike on bar 54
	// completes the score, so the strategy itself emits exactly one BUY. The
	// stop it attaches is capped at 8% below the entry close, and the crash
	// bar lands below it.
	const buyIdx = 54
	bars := make([]domain.Bar, 61)
	price := 100.0
	for i := range bars {
		switch {
		case i <= buyIdx:
			price = 100 * math.Pow(1.025, float64(i))
		case i < 60:
			// hold flat below the target
		case i == 60:
			price = bars[buyIdx].Close * 0.90
		}
		vol := int64(1_000_000)
		if i == buyIdx {
			vol = 2_000_000
		}
		bars[i] = domain.Bar{
			Symbol: "MOMO",
			Date:   day(i),
			Open:   price,
			High:   price,
			Low:    price * 0.99,
			Close:  price,
			Volume: vol,
		}
	}

	req := baseRequest("MOMO")
	e := NewEngine(&fakeSource{bars: map[string][]domain.Bar{"MOMO": bars}},
		builtins.NewMomentum(), NewSizer(0.02, 0.10), 50, testLogger())
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Reason != ReasonStopLoss {
		t.Fatalf("Reason = %q, want %q", tr.Reason, ReasonStopLoss)
	}
	if !tr.EntryDate.Equal(day(buyIdx)) {
		t.Errorf("EntryDate = %v, want %v", tr.EntryDate, day(buyIdx))
	}
	if !tr.ExitDate.Equal(day(60)) {
		t.Errorf("ExitDate = %v, want %v", tr.ExitDate, day(60))
	}

	entry := bars[buyIdx].Close
	if math.Abs(tr.EntryPrice-entry) > 1e-9 {
		t.Errorf("EntryPrice = %v, want %v", tr.EntryPrice, entry)
	}
	// The crash close sits below the strategy's 8%-capped stop, and the flat
	// closes before it do not.
	stop := entry * 0.92
	if tr.ExitPrice > stop {
		t.Errorf("ExitPrice = %v, want at or below stop %v", tr.ExitPrice, stop)
	}
	if math.Abs(tr.ExitPrice-entry*0.90) > 1e-9 {
		t.Errorf("ExitPrice = %v, want crash close %v", tr.ExitPrice, entry*0.90)
	}
	if tr.Profit >= 0 {
		t.Errorf("Profit = %v, want a loss", tr.Profit)
	}
	if math.Abs(res.FinalCash-(req.InitialCapital+tr.Profit)) > 1e-9 {
		t.Errorf("FinalCash = %v, want %v", res.FinalCash, req.InitialCapital+tr.Profit)
	}
}

func TestRunRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	bars := make(map[string][]domain.Bar)
	var syms []string
	for s := 0; s < 8; s++ {
		sym := fmt.Sprintf("S%02d", s)
		syms = append(syms, sym)

		price := 50 + rng.Float64()*100
		drift := 0.002 + rng.Float64()*0.02
		series := make([]domain.Bar, 120)
		for i := range series {
			price *= 1 + drift + (rng.Float64()-0.5)*0.03
			if price < 1 {
				price = 1
			}
			series[i] = domain.Bar{
				Symbol: sym,
				Date:   day(i),
				Open:   price * 0.99,
				High:   price * (1 + rng.Float64()*0.01),
				Low:    price * 0.98,
				Close:  price,
				Volume: int64(500_000 + rng.Intn(2_500_000)),
			}
		}
		bars[sym] = series
	}

	req := Request{
		Symbols:        syms,
		Start:          day(0),
		End:            day(120),
		InitialCapital: 100000,
		Commission:     0.001,
		Slippage:       0.0005,
		MaxPositions:   3,
	}

	e := NewEngine(&fakeSource{bars: bars}, builtins.NewMomentum(), NewSizer(0.02, 0.10), 50, testLogger())
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.EquityCurve) != 120 {
		t.Fatalf("got %d equity samples, want 120", len(res.EquityCurve))
	}

	for i, s := range res.EquityCurve {
		if s.Cash < -1e-9 {
			t.Fatalf("cash went negative at sample %d: %v", i, s.Cash)
		}
	}

	// Entries fill only after exits, so no more than MaxPositions overlap
	// when exit days are counted as free.
	concurrent := make(map[time.Time]int)
	for _, tr := range res.Trades {
		for d := tr.EntryDate; d.Before(tr.ExitDate); d = d.AddDate(0, 0, 1) {
			concurrent[d]++
			if concurrent[d] > req.MaxPositions {
				t.Fatalf("more than %d concurrent positions on %v", req.MaxPositions, d)
			}
		}
	}

	var profit float64
	for _, tr := range res.Trades {
		profit += tr.Profit
	}
	want := res.InitialCapital + profit
	if math.Abs(res.FinalCash-want) > 1e-6*math.Abs(want) {
		t.Errorf("FinalCash = %v, want initial + profits = %v", res.FinalCash, want)
	}
}

func TestRunSkipsThinHistory(t *testing.T) {
	bars := map[string][]domain.Bar{
		"AAPL": series("AAPL", constant(20, 100)),
		"THIN": series("THIN", constant(3, 100)),
	}
	src := &fakeSource{bars: bars}

	e := NewEngine(src, buyAt(10, 0.9, 90, 1000), NewSizer(0.02, 0.10), 5, testLogger())
	res, err := e.Run(context.Background(), baseRequest("AAPL", "THIN"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tr := range res.Trades {
		if tr.Symbol == "THIN" {
			t.Error("thin symbol was traded; it should be excluded")
		}
	}
}

func TestRunNoData(t *testing.T) {
	src := &fakeSource{bars: map[string][]domain.Bar{}}
	e := NewEngine(src, &scriptStrategy{fn: holdAlways}, NewSizer(0.02, 0.10), 5, testLogger())

	_, err := e.Run(context.Background(), baseRequest("AAPL"))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestRunValidation(t *testing.T) {
	e := NewEngine(&fakeSource{}, &scriptStrategy{fn: holdAlways}, NewSizer(0.02, 0.10), 5, testLogger())

	cases := []Request{
		{},
		{Symbols: []string{"AAPL"}, Start: day(0), End: day(10)},                          // no capital
		{Symbols: []string{"AAPL"}, Start: day(10), End: day(0), InitialCapital: 10000},   // inverted range
	}
	for i, req := range cases {
		if _, err := e.Run(context.Background(), req); err == nil {
			t.Errorf("case %d: want validation error, got nil", i)
		}
	}
}
