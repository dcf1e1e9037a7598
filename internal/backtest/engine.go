// Package backtest simulates a portfolio trading daily bars under a
// strategy, with slippage and commission applied to every fill, and computes
// performance statistics over the resulting trade log and equity curve.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/marketdata"
	"tradelab/internal/strategy"
)

// ErrNoData is returned when no requested symbol has enough history to
// simulate.
var ErrNoData = errors.New("backtest: no usable bar data for any symbol")

// Close reasons recorded on trades.
const (
	ReasonStopLoss   = "stop loss hit"
	ReasonTakeProfit = "take profit hit"
	ReasonEnded      = "backtest ended"
)

// minEntryConfidence is the lowest BUY confidence acted on.
const minEntryConfidence = 0.70

// Request describes one backtest run.
type Request struct {
	Symbols        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	Commission     float64 // per-fill fraction, e.g. 0.001
	Slippage       float64 // per-fill fraction, e.g. 0.0005
	MaxPositions   int
}

// Result holds the raw output of a simulation. Metrics are derived
// separately by Analyze.
type Result struct {
	InitialCapital float64
	FinalCash      float64
	Trades         []domain.Trade
	EquityCurve    []domain.EquitySample
	DailyReturns   []float64
}

// Engine runs backtests. It fetches history through a bar source, evaluates
// a strategy per symbol per day, and sizes entries through a Sizer.
type Engine struct {
	source  marketdata.Source
	strat   strategy.Strategy
	sizer   *Sizer
	minBars int
	log     *slog.Logger
}

// NewEngine assembles an engine. minBars is the least history a symbol must
// have to be simulated; zero selects the default of 50 daily bars.
func NewEngine(source marketdata.Source, strat strategy.Strategy, sizer *Sizer, minBars int, log *slog.Logger) *Engine {
	if minBars <= 0 {
		minBars = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{source: source, strat: strat, sizer: sizer, minBars: minBars, log: log}
}

// symbolData is per-symbol simulation state: the full bar history plus a
// cursor pointing at the most recent bar on or before the current clock day.
type symbolData struct {
	bars    []domain.Bar
	dateIdx map[time.Time]int
	cursor  int // -1 until the symbol's first bar is reached
}

// Run simulates the request and returns the raw result. The equity curve has
// one sample per trading day across the union of all symbols' calendars.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	maxPositions := req.MaxPositions
	if maxPositions <= 0 {
		maxPositions = 5
	}

	data, days, err := e.loadData(ctx, req)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(data))
	for sym := range data {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	e.log.Info("backtest starting",
		"strategy", e.strat.Name(),
		"symbols", len(symbols),
		"days", len(days),
		"capital", req.InitialCapital)

	cash := req.InitialCapital
	open := make(map[string]*domain.Position)
	res := &Result{InitialCapital: req.InitialCapital}

	for _, day := range days {
		for _, sd := range data {
			sd.advance(day)
		}

		// Exits before entries: a slot freed today may be refilled today.
		for _, sym := range symbols {
			pos, held := open[sym]
			if !held {
				continue
			}
			sd := data[sym]
			idx, ok := sd.dateIdx[day]
			if !ok {
				continue
			}
			bar := sd.bars[idx]

			switch {
			case bar.Close <= pos.StopLoss:
				cash += e.closePosition(res, pos, bar.Close, day, ReasonStopLoss, req)
				delete(open, sym)
			case bar.Close >= pos.Target:
				cash += e.closePosition(res, pos, bar.Close, day, ReasonTakeProfit, req)
				delete(open, sym)
			default:
				sig := e.strat.Evaluate(sd.bars[:idx+1])
				if sig.Type == domain.SignalSell {
					cash += e.closePosition(res, pos, bar.Close, day, sig.Reason, req)
					delete(open, sym)
				}
			}
		}

		// Entries fill remaining slots, best candidates first.
		if free := maxPositions - len(open); free > 0 {
			cands := e.scanEntries(data, symbols, open, day)
			for _, c := range cands {
				if free == 0 {
					break
				}
				quoted := c.bar.Close
				entry := quoted * (1 + req.Slippage) * (1 + req.Commission)
				shares := e.sizer.Shares(cash, quoted, entry, c.sig.StopLoss)
				if shares == 0 {
					continue
				}
				cost := float64(shares) * entry
				if cost > cash {
					continue
				}
				cash -= cost
				open[c.sig.Symbol] = &domain.Position{
					Symbol:     c.sig.Symbol,
					Shares:     shares,
					EntryPrice: entry,
					EntryDate:  day,
					StopLoss:   c.sig.StopLoss,
					Target:     c.sig.Target,
					Cost:       cost,
				}
				free--
				e.log.Debug("position opened",
					"symbol", c.sig.Symbol,
					"date", day.Format("2006-01-02"),
					"shares", shares,
					"entry", entry,
					"confidence", c.sig.Confidence)
			}
		}

		// Mark to market at last known closes.
		value := cash
		for sym, pos := range open {
			if px, ok := data[sym].lastClose(); ok {
				value += float64(pos.Shares) * px
			}
		}
		if n := len(res.EquityCurve); n > 0 {
			prev := res.EquityCurve[n-1].Value
			if prev > 0 {
				res.DailyReturns = append(res.DailyReturns, (value-prev)/prev)
			} else {
				res.DailyReturns = append(res.DailyReturns, 0)
			}
		}
		res.EquityCurve = append(res.EquityCurve, domain.EquitySample{Date: day, Value: value, Cash: cash})
	}

	// Close whatever is still open at each symbol's final bar.
	for _, sym := range symbols {
		pos, held := open[sym]
		if !held {
			continue
		}
		sd := data[sym]
		last := sd.bars[len(sd.bars)-1]
		cash += e.closePosition(res, pos, last.Close, last.Date, ReasonEnded, req)
		delete(open, sym)
	}
	res.FinalCash = cash

	// With everything liquidated, final equity is final cash. Rewrite the
	// last sample so the curve reconciles exactly with the trade log.
	if n := len(res.EquityCurve); n > 0 {
		res.EquityCurve[n-1].Value = cash
		res.EquityCurve[n-1].Cash = cash
		if n > 1 {
			prev := res.EquityCurve[n-2].Value
			if prev > 0 {
				res.DailyReturns[n-2] = (cash - prev) / prev
			}
		}
	}

	e.log.Info("backtest finished",
		"trades", len(res.Trades),
		"final_cash", fmt.Sprintf("%.2f", cash))
	return res, nil
}

func validate(req Request) error {
	if len(req.Symbols) == 0 {
		return errors.New("backtest: no symbols requested")
	}
	if req.InitialCapital <= 0 {
		return errors.New("backtest: initial capital must be positive")
	}
	if !req.End.After(req.Start) {
		return errors.New("backtest: end must be after start")
	}
	return nil
}

// loadData fetches bars for all requested symbols, drops those with too
// little history, and returns per-symbol state plus the sorted union of
// trading days.
func (e *Engine) loadData(ctx context.Context, req Request) (map[string]*symbolData, []time.Time, error) {
	barsBySym, err := marketdata.FetchAll(ctx, e.source, req.Symbols, req.Start, req.End)
	if err != nil {
		return nil, nil, err
	}

	data := make(map[string]*symbolData)
	daySet := make(map[time.Time]struct{})
	for sym, bars := range barsBySym {
		if len(bars) < e.minBars {
			e.log.Warn("symbol excluded: insufficient history",
				"symbol", sym, "bars", len(bars), "required", e.minBars)
			continue
		}
		sd := &symbolData{bars: bars, dateIdx: make(map[time.Time]int, len(bars)), cursor: -1}
		for i, b := range bars {
			sd.dateIdx[b.Date] = i
			daySet[b.Date] = struct{}{}
		}
		data[sym] = sd
	}
	if len(data) == 0 {
		return nil, nil, ErrNoData
	}

	days := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return data, days, nil
}

// advance moves the cursor to the latest bar on or before day.
func (sd *symbolData) advance(day time.Time) {
	for sd.cursor+1 < len(sd.bars) && !sd.bars[sd.cursor+1].Date.After(day) {
		sd.cursor++
	}
}

// lastClose is the close of the bar at the cursor, if any bar has been
// reached yet.
func (sd *symbolData) lastClose() (float64, bool) {
	if sd.cursor < 0 {
		return 0, false
	}
	return sd.bars[sd.cursor].Close, true
}

type candidate struct {
	sig domain.Signal
	bar domain.Bar
}

// scanEntries evaluates every flat symbol that traded today and has enough
// history, returning actionable BUY signals sorted by confidence descending
// with lexical symbol order as the tiebreak.
func (e *Engine) scanEntries(data map[string]*symbolData, symbols []string, open map[string]*domain.Position, day time.Time) []candidate {
	var cands []candidate
	for _, sym := range symbols {
		if _, held := open[sym]; held {
			continue
		}
		sd := data[sym]
		idx, ok := sd.dateIdx[day]
		if !ok || idx+1 < e.minBars {
			continue
		}
		sig := e.strat.Evaluate(sd.bars[:idx+1])
		if sig.Type != domain.SignalBuy || sig.Confidence < minEntryConfidence {
			continue
		}
		cands = append(cands, candidate{sig: sig, bar: sd.bars[idx]})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sig.Confidence != cands[j].sig.Confidence {
			return cands[i].sig.Confidence > cands[j].sig.Confidence
		}
		return cands[i].sig.Symbol < cands[j].sig.Symbol
	})
	return cands
}

// closePosition sells the full position at the quoted close, records the
// trade, and returns the cash proceeds.
func (e *Engine) closePosition(res *Result, pos *domain.Position, quoted float64, day time.Time, reason string, req Request) float64 {
	exit := quoted * (1 - req.Slippage) * (1 - req.Commission)
	proceeds := float64(pos.Shares) * exit
	profit := proceeds - pos.Cost

	trade := domain.Trade{
		Symbol:      pos.Symbol,
		EntryDate:   pos.EntryDate,
		ExitDate:    day,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exit,
		Shares:      pos.Shares,
		Profit:      profit,
		ReturnPct:   profit / pos.Cost * 100,
		HoldingDays: int(day.Sub(pos.EntryDate).Hours() / 24),
		Reason:      reason,
	}
	res.Trades = append(res.Trades, trade)

	e.log.Debug("position closed",
		"symbol", pos.Symbol,
		"date", day.Format("2006-01-02"),
		"exit", exit,
		"profit", fmt.Sprintf("%.2f", profit),
		"reason", reason)
	return proceeds
}
