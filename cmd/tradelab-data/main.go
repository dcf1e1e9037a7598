package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradelab/internal/config"
	"tradelab/internal/gather"
	"tradelab/internal/store"
	"tradelab/internal/util"
)

func main() {
	daemon := flag.Bool("daemon", false, "keep running and refresh bars on the configured cron schedule")
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides config)")
	flag.Parse()

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

	universe := cfg.Gather.Symbols
	if *symbols != "" {
		universe = splitSymbols(*symbols)
	}
	if len(universe) == 0 {
		log.Fatal("no symbols configured; set gather.symbols or pass -symbols")
	}

	start, err := time.Parse("2006-01-02", cfg.Gather.StartDate)
	if err != nil {
		log.Fatalf("invalid gather.start_date %q: %v", cfg.Gather.StartDate, err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		gather.Options{
			Symbols:    universe,
			Start:      start,
			BatchSize:  cfg.Gather.BatchSize,
			MaxWorkers: cfg.Gather.MaxWorkers,
		},
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gatherer.Gather(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}

	if *daemon {
		if cfg.Gather.Schedule == "" {
			log.Fatal("daemon mode needs gather.schedule, e.g. \"30 21 * * 1-5\"")
		}
		sched := gather.NewScheduler(logger)
		if err := sched.Add(cfg.Gather.Schedule, gatherer); err != nil {
			log.Fatalf("invalid schedule %q: %v", cfg.Gather.Schedule, err)
		}
		sched.Run(ctx)
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
