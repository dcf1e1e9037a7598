package marketdata

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradelab/internal/util"
)

const avPayload = `{
  "Meta Data": {"2. Symbol": "aapl"},
  "Time Series (Daily)": {
    "2024-03-04": {"1. open": "102.0", "2. high": "103.5", "3. low": "101.0", "4. close": "103.0", "5. volume": "2000000"},
    "2024-03-01": {"1. open": "100.0", "2. high": "101.5", "3. low": "99.0", "4. close": "101.0", "5. volume": "1500000"},
    "2024-02-01": {"1. open": "90.0", "2. high": "91.0", "3. low": "89.0", "4. close": "90.5", "5. volume": "1000000"}
  }
}`

func TestAlphaVantageFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(avPayload))
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("test-key", srv.URL, 60)
	bars, err := src.Fetch(context.Background(),
		"aapl",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// The February bar falls outside the requested range.
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Close != 101.0 || bars[1].Close != 103.0 {
		t.Errorf("closes = %v/%v, want 101/103 in date order", bars[0].Close, bars[1].Close)
	}
	if bars[0].Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want upcased AAPL", bars[0].Symbol)
	}
	if bars[1].Volume != 2000000 {
		t.Errorf("Volume = %d, want 2000000", bars[1].Volume)
	}

	for _, want := range []string{"function=TIME_SERIES_DAILY", "symbol=aapl", "apikey=test-key"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestAlphaVantageRetryDiscardsPartialDecode(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			// Malformed body: the decoder sets Note before failing on the
			// series field, and that partial result must not survive into
			// the retry.
			w.Write([]byte(`{"Note": "stale throttle message", "Time Series (Daily)": 5}`))
			return
		}
		w.Write([]byte(avPayload))
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("test-key", srv.URL, 60)
	src.retrier = util.NewRetrier(3, time.Millisecond, slog.New(slog.DiscardHandler))

	bars, err := src.Fetch(context.Background(), "AAPL",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch after retry: %v", err)
	}
	if requests != 2 {
		t.Fatalf("server saw %d requests, want 2", requests)
	}
	if len(bars) != 2 {
		t.Errorf("got %d bars, want 2", len(bars))
	}
}

func TestAlphaVantageRateLimitNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`))
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("test-key", srv.URL, 60)
	_, err := src.Fetch(context.Background(), "AAPL",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want rate limit error", err)
	}
}

func TestAlphaVantageErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("test-key", srv.URL, 60)
	_, err := src.Fetch(context.Background(), "BOGUS",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err == nil || !strings.Contains(err.Error(), "Invalid API call") {
		t.Fatalf("err = %v, want API error surfaced", err)
	}
}
