package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlphaVantageSource)(nil)

// DefaultAlphaVantageURL is the production Alpha Vantage endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantageSource fetches daily bars from the Alpha Vantage
// TIME_SERIES_DAILY endpoint. The free tier allows 5 requests per minute, so
// calls are rate limited and retried on transient failures.
type AlphaVantageSource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	retrier    *util.Retrier
}

// NewAlphaVantageSource creates an AlphaVantageSource with the given API key
// and per-minute request budget. baseURL overrides the production endpoint
// when non-empty.
func NewAlphaVantageSource(apiKey, baseURL string, ratePerMin int) *AlphaVantageSource {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 5
	}
	return &AlphaVantageSource{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    util.NewRateLimiter(ratePerMin),
		retrier:    util.NewRetrier(3, time.Second, slog.Default().With("component", "alphavantage")),
	}
}

// avDailyResponse mirrors the TIME_SERIES_DAILY payload. Alpha Vantage
// reports quota and input problems as 200 responses with a message field.
type avDailyResponse struct {
	ErrorMessage string                  `json:"Error Message"`
	Note         string                  `json:"Note"`
	Information  string                  `json:"Information"`
	TimeSeries   map[string]avDailyEntry `json:"Time Series (Daily)"`
}

type avDailyEntry struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// Fetch retrieves daily bars for the symbol within [start, end].
func (s *AlphaVantageSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", "full")
	q.Set("apikey", s.apiKey)
	reqURL := s.baseURL + "?" + q.Encode()

	var payload avDailyResponse
	err := s.retrier.Do(ctx, "daily series", func() error {
		// Decode into a fresh struct each attempt so fields half-filled by
		// a failed decode never leak into the next one.
		var attempt avDailyResponse
		if err := s.getJSON(ctx, reqURL, &attempt); err != nil {
			return err
		}
		payload = attempt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("alphavantage %s: %w", symbol, err)
	}

	if payload.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage %s: %s", symbol, payload.ErrorMessage)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("alphavantage %s: rate limited: %s", symbol, payload.Note)
	}
	if payload.Information != "" {
		return nil, fmt.Errorf("alphavantage %s: %s", symbol, payload.Information)
	}

	startDay, endDay := domain.Day(start), domain.Day(end)

	bars := make([]domain.Bar, 0, len(payload.TimeSeries))
	for dateStr, entry := range payload.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("alphavantage %s: bad date %q: %w", symbol, dateStr, err)
		}
		if date.Before(startDay) || date.After(endDay) {
			continue
		}

		bar, err := entry.toBar(strings.ToUpper(symbol), date)
		if err != nil {
			return nil, fmt.Errorf("alphavantage %s @ %s: %w", symbol, dateStr, err)
		}
		bars = append(bars, bar)
	}
	return Normalize(bars), nil
}

func (s *AlphaVantageSource) getJSON(ctx context.Context, reqURL string, out *avDailyResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (e avDailyEntry) toBar(symbol string, date time.Time) (domain.Bar, error) {
	open, err := strconv.ParseFloat(e.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open: %w", err)
	}
	high, err := strconv.ParseFloat(e.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high: %w", err)
	}
	low, err := strconv.ParseFloat(e.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low: %w", err)
	}
	closep, err := strconv.ParseFloat(e.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close: %w", err)
	}
	volume, err := strconv.ParseInt(e.Volume, 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume: %w", err)
	}

	return domain.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closep,
		Volume: volume,
	}, nil
}
