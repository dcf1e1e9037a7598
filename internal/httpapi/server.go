// Package httpapi serves the tradelab HTTP API: stored bars, backtest runs,
// on-demand simulations, and momentum scans.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/scan"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
)

// Server serves the JSON API over a local bar store and run store.
type Server struct {
	bars     *store.ParquetStore
	runs     store.RunStore
	registry *strategy.Registry
	scanner  *scan.Scanner
	defaults config.Backtest
	log      *slog.Logger
}

// NewServer assembles the API server. The parquet store doubles as the bar
// source for simulations and scans.
func NewServer(bars *store.ParquetStore, runs store.RunStore, registry *strategy.Registry, defaults config.Backtest, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		bars:     bars,
		runs:     runs,
		registry: registry,
		scanner:  scan.NewScanner(bars, log),
		defaults: defaults,
		log:      log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/bars/{symbol}", s.handleBars)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("GET /api/v1/scan", s.handleScan)
	mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies)
}

// Handler returns the fully-routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logMiddleware(mux)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.bars.ReadBars(r.Context(), symbol, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]barJSON, 0, len(bars))
	for _, b := range bars {
		out = append(out, toBarJSON(b))
	}
	writeJSON(w, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]runJSON, 0, len(runs))
	for i := range runs {
		out = append(out, toRunJSON(&runs[i]))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %d not found", id))
		return
	}
	trades, err := s.runs.GetTrades(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	curve, err := s.runs.GetEquityCurve(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail := runDetailJSON{Run: toRunJSON(run)}
	for _, t := range trades {
		detail.Trades = append(detail.Trades, toTradeJSON(t))
	}
	for _, e := range curve {
		detail.Equity = append(detail.Equity, toEquityJSON(e))
	}
	writeJSON(w, detail)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var body backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	req, strat, err := s.buildRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sizer := backtest.NewSizer(s.defaults.RiskPerTrade, s.defaults.MaxPositionPct)
	engine := backtest.NewEngine(s.bars, strat, sizer, 0, s.log)

	res, err := engine.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backtest.ErrNoData) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	report := backtest.Analyze(res)

	record := runRecordFromReport(req, strat.Name(), report)
	id, err := s.runs.SaveRun(r.Context(), record, res.Trades, res.EquityCurve)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving run: "+err.Error())
		return
	}
	record.ID = id

	writeJSON(w, backtestResponseJSON{
		RunID:  id,
		Run:    toRunJSON(record),
		Report: report.Format(),
	})
}

func (s *Server) buildRequest(body backtestRequest) (backtest.Request, strategy.Strategy, error) {
	var req backtest.Request

	if len(body.Symbols) == 0 {
		return req, nil, fmt.Errorf("symbols required")
	}
	start, err := time.Parse(apiDateLayout, body.Start)
	if err != nil {
		return req, nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse(apiDateLayout, body.End)
	if err != nil {
		return req, nil, fmt.Errorf("invalid end date: %w", err)
	}

	name := body.Strategy
	if name == "" {
		name = "qullamaggie-momentum"
	}
	strat, ok := s.registry.Get(name)
	if !ok {
		return req, nil, fmt.Errorf("unknown strategy %q", name)
	}

	req = backtest.Request{
		Symbols:        body.Symbols,
		Start:          start,
		End:            end,
		InitialCapital: body.InitialCapital,
		Commission:     body.Commission,
		Slippage:       body.Slippage,
		MaxPositions:   body.MaxPositions,
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = s.defaults.InitialCapital
	}
	if req.Commission == 0 {
		req.Commission = s.defaults.Commission
	}
	if req.Slippage == 0 {
		req.Slippage = s.defaults.Slippage
	}
	if req.MaxPositions <= 0 {
		req.MaxPositions = s.defaults.MaxPositions
	}
	return req, strat, nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if v := r.URL.Query().Get("symbols"); v != "" {
		for _, sym := range strings.Split(v, ",") {
			if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	} else {
		var err error
		symbols, err = s.bars.ListSymbols(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	cands, err := s.scanner.Scan(r.Context(), symbols, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cands == nil {
		cands = []scan.Candidate{}
	}
	writeJSON(w, cands)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.registry.List())
}

func parseDateRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	startStr, endStr := q.Get("start"), q.Get("end")

	end = time.Now().UTC()
	start = end.AddDate(-1, 0, 0)

	if startStr != "" {
		if start, err = time.Parse(apiDateLayout, startStr); err != nil {
			return start, end, fmt.Errorf("invalid start date %q", startStr)
		}
	}
	if endStr != "" {
		if end, err = time.Parse(apiDateLayout, endStr); err != nil {
			return start, end, fmt.Errorf("invalid end date %q", endStr)
		}
	}
	return start, end, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
