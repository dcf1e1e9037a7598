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

	"tradelab/internal/config"
	"tradelab/internal/scan"
	"tradelab/internal/store"
	"tradelab/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols (default: every symbol in the bar store)")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var universe []string
	if *symbols != "" {
		for _, sym := range strings.Split(*symbols, ",") {
			if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
				universe = append(universe, sym)
			}
		}
	} else {
		universe, err = pstore.ListSymbols(ctx)
		if err != nil {
			log.Fatalf("listing symbols: %v", err)
		}
	}
	if len(universe) == 0 {
		log.Fatal("no symbols to scan; gather data first or pass -symbols")
	}

	scanner := scan.NewScanner(pstore, logger)
	cands, err := scanner.Scan(ctx, universe, time.Now())
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	if len(cands) == 0 {
		fmt.Println("no momentum candidates found")
		return
	}
	fmt.Printf("%-8s %-7s %-10s %-12s %-8s %s\n", "SYMBOL", "SCORE", "PRICE", "20D HIGH", "VOL", "TREND")
	for _, c := range cands {
		fmt.Printf("%-8s %-7.2f %-10.2f %-12.2f %-8.2f %.2f\n",
			c.Symbol, c.Score, c.Price, c.TwentyDayHigh, c.VolumeRatio, c.TrendStrength)
	}
}
