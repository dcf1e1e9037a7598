package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradelab/internal/domain"
	"tradelab/internal/marketdata"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ marketdata.Source = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk, one file per
// symbol and year:
//
//	<DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// WriteBars writes bar data grouped by symbol and year, merging with any
// records already on disk and de-duplicating by (symbol, date).
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Date.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  domain.Day(b.Date).UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		// Read existing records to merge.
		existing, err := readParquetFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data for the given symbol and date range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	startDay, endDay := domain.Day(start), domain.Day(end)

	var bars []domain.Bar
	for year := startDay.Year(); year <= endDay.Year(); year++ {
		records, err := readParquetFile(s.barPath(strings.ToUpper(symbol), year))
		if errors.Is(err, os.ErrNotExist) {
			// No file for this year.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			date := domain.Day(time.UnixMilli(r.Timestamp))
			if date.Before(startDay) || date.After(endDay) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Date:       date,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Fetch satisfies marketdata.Source, so a populated store can feed the
// simulator directly.
func (s *ParquetStore) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return s.ReadBars(ctx, symbol, start, end)
}

// ListSymbols lists all symbols that have bar data in the store.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "us", "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "us", "daily", symbol, fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile(path string, records []BarRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile(path string) ([]BarRecord, error) {
	return parquet.ReadFile[BarRecord](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
