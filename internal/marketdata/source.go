// Package marketdata defines the Source contract for historical daily bar
// retrieval and provides implementations backed by the Alpaca market-data
// API, the Alpha Vantage quote API, and the local bar store.
package marketdata

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tradelab/internal/domain"
)

// Source supplies historical daily OHLCV bars for one symbol over a date
// range. Implementations must return chronologically ordered, de-duplicated
// bars; an empty result means "no data for this symbol/range" and is not an
// error.
type Source interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// FetchAll retrieves bars for every symbol concurrently, one fetch per
// symbol, and joins before returning. Per-symbol failures and empty results
// are logged and the symbol omitted; only context cancellation aborts the
// whole call. The returned map contains only symbols with at least one bar.
func FetchAll(ctx context.Context, src Source, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	log := slog.Default().With("component", "marketdata")

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		series = make(map[string][]domain.Bar, len(symbols))
	)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			bars, err := src.Fetch(ctx, symbol, start, end)
			if err != nil {
				log.Warn("fetch failed, symbol skipped", "symbol", symbol, "err", err)
				return
			}
			if len(bars) == 0 {
				log.Info("no data for symbol in range", "symbol", symbol)
				return
			}

			mu.Lock()
			series[symbol] = Normalize(bars)
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

// Normalize sorts bars chronologically, truncates timestamps to their
// calendar day, and drops duplicate dates (keeping the last occurrence).
func Normalize(bars []domain.Bar) []domain.Bar {
	byDate := make(map[time.Time]domain.Bar, len(bars))
	for _, b := range bars {
		b.Date = domain.Day(b.Date)
		byDate[b.Date] = b
	}

	out := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
