// Package scan screens a symbol universe for momentum setups using recent
// daily bars, without simulating a portfolio.
package scan

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/marketdata"
	"tradelab/internal/strategy/builtins"
)

// Defaults for the scanner.
const (
	// minScore is the lowest momentum score worth reporting.
	minScore = 0.70

	// maxResults caps the candidate list.
	maxResults = 10

	// lookbackDays is how much calendar history to pull per symbol. Wide
	// enough to yield 50+ trading days for the long moving average.
	lookbackDays = 120
)

// Candidate is one symbol that passed the momentum screen.
type Candidate struct {
	Symbol        string  `json:"symbol"`
	Score         float64 `json:"score"`
	Price         float64 `json:"price"`
	TwentyDayHigh float64 `json:"twenty_day_high"`
	VolumeRatio   float64 `json:"volume_ratio"`
	TrendStrength float64 `json:"trend_strength"`
}

// Scanner screens symbols against the momentum model.
type Scanner struct {
	source marketdata.Source
	model  *builtins.Momentum
	log    *slog.Logger
}

// NewScanner builds a scanner over the given bar source.
func NewScanner(source marketdata.Source, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{source: source, model: builtins.NewMomentum(), log: log}
}

// Scan fetches recent history for every symbol as of the given date, scores
// it, and returns candidates scoring above 0.70, best first, at most ten.
func (s *Scanner) Scan(ctx context.Context, symbols []string, asOf time.Time) ([]Candidate, error) {
	asOf = domain.Day(asOf)
	start := asOf.AddDate(0, 0, -lookbackDays)

	series, err := marketdata.FetchAll(ctx, s.source, symbols, start, asOf)
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	for sym, bars := range series {
		if len(bars) < s.model.MinHistory() {
			s.log.Debug("symbol skipped: thin history", "symbol", sym, "bars", len(bars))
			continue
		}
		score := s.model.Score(bars)
		if score <= minScore {
			continue
		}
		cands = append(cands, Candidate{
			Symbol:        sym,
			Score:         score,
			Price:         bars[len(bars)-1].Close,
			TwentyDayHigh: twentyDayHigh(bars),
			VolumeRatio:   s.model.VolumeRatio(bars),
			TrendStrength: s.model.TrendStrength(bars),
		})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Symbol < cands[j].Symbol
	})
	if len(cands) > maxResults {
		cands = cands[:maxResults]
	}

	s.log.Info("scan complete", "universe", len(symbols), "candidates", len(cands))
	return cands, nil
}

func twentyDayHigh(bars []domain.Bar) float64 {
	n := 20
	if len(bars) < n {
		n = len(bars)
	}
	high := 0.0
	for _, b := range bars[len(bars)-n:] {
		if b.High > high {
			high = b.High
		}
	}
	return high
}
