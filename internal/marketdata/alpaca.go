package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradelab/internal/domain"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client *marketdata.Client
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. dataURL
// overrides the default API endpoint when non-empty.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts)}
}

// Fetch retrieves daily bars for the symbol within [start, end].
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alpacaBars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
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
	return Normalize(bars), nil
}
