package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/marketdata"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
	"tradelab/internal/strategy/builtins"
	"tradelab/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols to backtest (required)")
	startStr := flag.String("start", "", "start date YYYY-MM-DD (required)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (required)")
	stratName := flag.String("strategy", "qullamaggie-momentum", "strategy name")
	source := flag.String("source", "store", "bar source: store, alpaca, or alphavantage")
	save := flag.Bool("save", true, "persist the run to the run database")
	flag.Parse()

	if *symbols == "" || *startStr == "" || *endStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/tradelab.yaml"
	if p := os.Getenv("TRADELAB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewMomentum())
	strat, ok := registry.Get(*stratName)
	if !ok {
		log.Fatalf("unknown strategy %q; available: %v", *stratName, registry.List())
	}

	src, err := pickSource(*source, cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sizer := backtest.NewSizer(cfg.Backtest.RiskPerTrade, cfg.Backtest.MaxPositionPct)
	engine := backtest.NewEngine(src, strat, sizer, 0, logger)

	req := backtest.Request{
		Symbols:        splitSymbols(*symbols),
		Start:          start,
		End:            end,
		InitialCapital: cfg.Backtest.InitialCapital,
		Commission:     cfg.Backtest.Commission,
		Slippage:       cfg.Backtest.Slippage,
		MaxPositions:   cfg.Backtest.MaxPositions,
	}

	res, err := engine.Run(ctx, req)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	report := backtest.Analyze(res)
	fmt.Print(report.Format())

	if *save {
		runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening run database: %v", err)
		}
		defer runs.Close()

		record := &store.RunRecord{
			CreatedAt:      time.Now().UTC(),
			Strategy:       strat.Name(),
			Symbols:        req.Symbols,
			Start:          req.Start,
			End:            req.End,
			InitialCapital: report.InitialCapital,
			FinalValue:     report.FinalValue,
			TotalReturnPct: report.TotalReturnPct,
			TotalTrades:    report.TotalTrades,
			WinRatePct:     report.WinRatePct,
			ProfitFactor:   report.ProfitFactor,
			SharpeRatio:    report.SharpeRatio,
			MaxDrawdownPct: report.MaxDrawdownPct,
			VolatilityPct:  report.VolatilityPct,
		}
		id, err := runs.SaveRun(ctx, record, res.Trades, res.EquityCurve)
		if err != nil {
			log.Fatalf("saving run: %v", err)
		}
		logger.Info("run saved", "id", id)
	}
}

func pickSource(name string, cfg *config.Config) (marketdata.Source, error) {
	switch name {
	case "store":
		return store.NewParquetStore(cfg.Storage.DataDir), nil
	case "alpaca":
		return marketdata.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL), nil
	case "alphavantage":
		return marketdata.NewAlphaVantageSource(cfg.AlphaVantage.APIKey, "", cfg.AlphaVantage.RateLimitPerMin), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want store, alpaca, or alphavantage)", name)
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
