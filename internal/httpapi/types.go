package httpapi

import (
	"math"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/domain"
	"tradelab/internal/store"
)

// backtestRequest is the POST /api/v1/backtest payload.
type backtestRequest struct {
	Strategy       string   `json:"strategy"`
	Symbols        []string `json:"symbols"`
	Start          string   `json:"start"` // YYYY-MM-DD
	End            string   `json:"end"`
	InitialCapital float64  `json:"initial_capital"`
	Commission     float64  `json:"commission"`
	Slippage       float64  `json:"slippage"`
	MaxPositions   int      `json:"max_positions"`
}

// runJSON is the wire form of a stored run. ProfitFactor is a pointer
// because +Inf has no JSON representation; null means "wins, no losses".
type runJSON struct {
	ID             int64    `json:"id"`
	CreatedAt      string   `json:"created_at"`
	Strategy       string   `json:"strategy"`
	Symbols        []string `json:"symbols"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	InitialCapital float64  `json:"initial_capital"`
	FinalValue     float64  `json:"final_value"`
	TotalReturnPct float64  `json:"total_return_pct"`
	TotalTrades    int      `json:"total_trades"`
	WinRatePct     float64  `json:"win_rate_pct"`
	ProfitFactor   *float64 `json:"profit_factor"`
	SharpeRatio    float64  `json:"sharpe_ratio"`
	MaxDrawdownPct float64  `json:"max_drawdown_pct"`
	VolatilityPct  float64  `json:"volatility_pct"`
}

type tradeJSON struct {
	Symbol      string  `json:"symbol"`
	EntryDate   string  `json:"entry_date"`
	ExitDate    string  `json:"exit_date"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Shares      int64   `json:"shares"`
	Profit      float64 `json:"profit"`
	ReturnPct   float64 `json:"return_pct"`
	HoldingDays int     `json:"holding_days"`
	Reason      string  `json:"reason"`
}

type equityJSON struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Cash  float64 `json:"cash"`
}

type barJSON struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// runDetailJSON is the GET /api/v1/runs/{id} response.
type runDetailJSON struct {
	Run    runJSON      `json:"run"`
	Trades []tradeJSON  `json:"trades"`
	Equity []equityJSON `json:"equity_curve"`
}

// backtestResponseJSON is the POST /api/v1/backtest response.
type backtestResponseJSON struct {
	RunID  int64   `json:"run_id"`
	Run    runJSON `json:"run"`
	Report string  `json:"report"`
}

const apiDateLayout = "2006-01-02"

func toRunJSON(r *store.RunRecord) runJSON {
	out := runJSON{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		Strategy:       r.Strategy,
		Symbols:        r.Symbols,
		Start:          r.Start.Format(apiDateLayout),
		End:            r.End.Format(apiDateLayout),
		InitialCapital: r.InitialCapital,
		FinalValue:     r.FinalValue,
		TotalReturnPct: r.TotalReturnPct,
		TotalTrades:    r.TotalTrades,
		WinRatePct:     r.WinRatePct,
		SharpeRatio:    r.SharpeRatio,
		MaxDrawdownPct: r.MaxDrawdownPct,
		VolatilityPct:  r.VolatilityPct,
	}
	if !math.IsInf(r.ProfitFactor, 1) {
		pf := r.ProfitFactor
		out.ProfitFactor = &pf
	}
	return out
}

func toTradeJSON(t domain.Trade) tradeJSON {
	return tradeJSON{
		Symbol:      t.Symbol,
		EntryDate:   t.EntryDate.Format(apiDateLayout),
		ExitDate:    t.ExitDate.Format(apiDateLayout),
		EntryPrice:  t.EntryPrice,
		ExitPrice:   t.ExitPrice,
		Shares:      t.Shares,
		Profit:      t.Profit,
		ReturnPct:   t.ReturnPct,
		HoldingDays: t.HoldingDays,
		Reason:      t.Reason,
	}
}

func toEquityJSON(s domain.EquitySample) equityJSON {
	return equityJSON{Date: s.Date.Format(apiDateLayout), Value: s.Value, Cash: s.Cash}
}

func toBarJSON(b domain.Bar) barJSON {
	return barJSON{
		Symbol: b.Symbol,
		Date:   b.Date.Format(apiDateLayout),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// runRecordFromReport folds a finished simulation into a storable summary.
func runRecordFromReport(req backtest.Request, strategyName string, rep *backtest.Report) *store.RunRecord {
	return &store.RunRecord{
		CreatedAt:      time.Now().UTC(),
		Strategy:       strategyName,
		Symbols:        req.Symbols,
		Start:          req.Start,
		End:            req.End,
		InitialCapital: rep.InitialCapital,
		FinalValue:     rep.FinalValue,
		TotalReturnPct: rep.TotalReturnPct,
		TotalTrades:    rep.TotalTrades,
		WinRatePct:     rep.WinRatePct,
		ProfitFactor:   rep.ProfitFactor,
		SharpeRatio:    rep.SharpeRatio,
		MaxDrawdownPct: rep.MaxDrawdownPct,
		VolatilityPct:  rep.VolatilityPct,
	}
}
