// Package gather pulls daily bar history from Alpaca in symbol batches and
// persists it to the local bar store, either as a one-shot backfill or on a
// cron schedule.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradelab/internal/domain"
	"tradelab/internal/store"
	"tradelab/internal/util"
)

// barsClient is the slice of the Alpaca client the gatherer needs.
type barsClient interface {
	GetMultiBars(symbols []string, req alpacamd.GetBarsRequest) (map[string][]alpacamd.Bar, error)
}

// Options configures a DailyBarGatherer.
type Options struct {
	Symbols    []string
	Start      time.Time
	BatchSize  int
	MaxWorkers int
}

// DailyBarGatherer downloads daily bars for a symbol universe and writes
// them through a BarStore. Symbols are fetched in batches by a fixed worker
// pool; each batch is retried on transient failures.
type DailyBarGatherer struct {
	client     barsClient
	store      store.BarStore
	symbols    []string
	start      time.Time
	batchSize  int
	maxWorkers int
	retrier    *util.Retrier
	log        *slog.Logger
}

// NewDailyBarGatherer builds a gatherer talking to the Alpaca market-data
// API with the given credentials.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, st store.BarStore, opts Options, log *slog.Logger) *DailyBarGatherer {
	clientOpts := alpacamd.ClientOpts{APIKey: apiKey, APISecret: apiSecret}
	if dataURL != "" {
		clientOpts.BaseURL = dataURL
	}
	return newGatherer(alpacamd.NewClient(clientOpts), st, opts, log)
}

func newGatherer(client barsClient, st store.BarStore, opts Options, log *slog.Logger) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gather")
	return &DailyBarGatherer{
		client:     client,
		store:      st,
		symbols:    opts.Symbols,
		start:      opts.Start,
		batchSize:  opts.BatchSize,
		maxWorkers: opts.MaxWorkers,
		retrier:    util.NewRetrier(3, 2*time.Second, log),
		log:        log,
	}
}

// Gather fetches bars from the configured start date through today for every
// symbol and persists them. Failed batches are logged and counted; the run
// fails only when every batch fails or the context is cancelled.
func (g *DailyBarGatherer) Gather(ctx context.Context) error {
	batches := chunk(g.symbols, g.batchSize)
	if len(batches) == 0 {
		return nil
	}
	end := domain.Day(time.Now())

	g.log.Info("gather starting",
		"symbols", len(g.symbols),
		"batches", len(batches),
		"workers", g.maxWorkers,
		"start", g.start.Format("2006-01-02"))

	var (
		wg       sync.WaitGroup
		barCount atomic.Int64
		failed   atomic.Int64
	)
	work := make(chan int)

	for w := 0; w < g.maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				n, err := g.gatherBatch(ctx, batches[i], end)
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed", "batch", i, "err", err)
					continue
				}
				barCount.Add(int64(n))
			}
		}()
	}

	for i := range batches {
		select {
		case work <- i:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(work)
	wg.Wait()

	g.log.Info("gather finished",
		"bars_written", barCount.Load(),
		"batches_failed", failed.Load())

	if int(failed.Load()) == len(batches) {
		return fmt.Errorf("gather: all %d batches failed", len(batches))
	}
	return nil
}

func (g *DailyBarGatherer) gatherBatch(ctx context.Context, symbols []string, end time.Time) (int, error) {
	var multi map[string][]alpacamd.Bar
	err := g.retrier.Do(ctx, "alpaca multi bars", func() error {
		var err error
		multi, err = g.client.GetMultiBars(symbols, alpacamd.GetBarsRequest{
			TimeFrame: alpacamd.OneDay,
			Start:     g.start,
			End:       end,
			Feed:      "sip",
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	var bars []domain.Bar
	for sym, alpacaBars := range multi {
		sym = strings.ToUpper(sym)
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     sym,
				Date:       domain.Day(ab.Timestamp),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := g.store.WriteBars(ctx, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}
