// Package domain defines the core value types shared across the tradelab
// platform: OHLCV bars, trading signals, simulated positions, closed trades,
// and equity curve samples.
package domain

import "time"

// Bar is a single daily OHLCV record for one symbol. Bars are immutable once
// retrieved and are kept in chronological order per symbol, one bar per
// calendar day.
type Bar struct {
	Symbol     string
	Date       time.Time // trading day, normalized to midnight UTC
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// SignalType classifies a strategy signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is the output of a strategy evaluation for one symbol at one date.
// Signals are ephemeral: produced fresh on each evaluation, never persisted.
// StopLoss and Target are only set on BUY signals; zero means "not set".
type Signal struct {
	Symbol     string
	Type       SignalType
	Confidence float64 // 0.0 – 1.0
	Reason     string
	StopLoss   float64
	Target     float64
}

// Position is an open simulated holding. It is created when a position is
// opened and removed when closed; it is never mutated in between.
type Position struct {
	Symbol     string
	Shares     int64
	EntryPrice float64 // post-slippage/commission fill price
	EntryDate  time.Time
	StopLoss   float64
	Target     float64
	Cost       float64 // initial cost basis (shares * entry price)
}

// Trade is an immutable record of a closed position.
type Trade struct {
	Symbol      string
	EntryDate   time.Time
	ExitDate    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Shares      int64
	Profit      float64
	ReturnPct   float64
	HoldingDays int
	Reason      string
}

// EquitySample is one point of the simulated equity curve: total portfolio
// value (cash plus mark-to-market open positions) at the end of one trading
// day.
type EquitySample struct {
	Date  time.Time
	Value float64
	Cash  float64
}

// Day truncates t to its calendar day in UTC. All bar dates and simulation
// clock values are normalized through this.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
