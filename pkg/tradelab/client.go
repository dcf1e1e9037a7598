// Package tradelab provides a Go SDK for the tradelab-server API. Responses
// are returned as raw JSON so callers can decode into their own types.
package tradelab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a tradelab-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetBars retrieves stored daily bars for a symbol within [start, end].
func (c *Client) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("start", start.Format("2006-01-02"))
	q.Set("end", end.Format("2006-01-02"))
	return c.get(ctx, "/api/v1/bars/"+url.PathEscape(symbol)+"?"+q.Encode())
}

// ListRuns retrieves the most recent backtest runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]byte, error) {
	path := "/api/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.get(ctx, path)
}

// GetRun retrieves one run with its trade log and equity curve.
func (c *Client) GetRun(ctx context.Context, id int64) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/runs/%d", id))
}

// RunBacktest submits a backtest request and returns the saved run with its
// text report. body is the JSON request payload.
func (c *Client) RunBacktest(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/backtest", body)
}

// Scan screens the given symbols for momentum setups. An empty symbol list
// scans everything in the server's bar store.
func (c *Client) Scan(ctx context.Context, symbols []string) ([]byte, error) {
	path := "/api/v1/scan"
	if len(symbols) > 0 {
		path += "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	}
	return c.get(ctx, path)
}

// ListStrategies retrieves the names of the registered strategies.
func (c *Client) ListStrategies(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/api/v1/strategies")
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
