// Package store provides persistence for daily bar data (Parquet files) and
// completed backtest runs (SQLite).
package store

import (
	"context"
	"time"

	"tradelab/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with existing data.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the store.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is the stored summary of one completed backtest run.
type RunRecord struct {
	ID             int64
	CreatedAt      time.Time
	Strategy       string
	Symbols        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalValue     float64
	TotalReturnPct float64
	TotalTrades    int
	WinRatePct     float64
	ProfitFactor   float64 // +Inf when the run had wins and no losses
	SharpeRatio    float64
	MaxDrawdownPct float64
	VolatilityPct  float64
}

// RunStore persists and retrieves completed backtest runs.
type RunStore interface {
	// SaveRun inserts a run summary with its trade log and equity curve,
	// returning the assigned run ID.
	SaveRun(ctx context.Context, run *RunRecord, trades []domain.Trade, equity []domain.EquitySample) (int64, error)

	// GetRun retrieves a run summary by ID.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// GetTrades returns the trade log for a run in entry order.
	GetTrades(ctx context.Context, runID int64) ([]domain.Trade, error)

	// GetEquityCurve returns the equity curve for a run in date order.
	GetEquityCurve(ctx context.Context, runID int64) ([]domain.EquitySample, error)
}
