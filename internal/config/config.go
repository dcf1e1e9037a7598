// Package config loads the tradelab YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradelab platform.
type Config struct {
	Storage      Storage      `yaml:"storage"`
	Server       Server       `yaml:"server"`
	Alpaca       Alpaca       `yaml:"alpaca"`
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
	Logging      Logging      `yaml:"logging"`
	Gather       Gather       `yaml:"gather"`
	Backtest     Backtest     `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration for the HTTP API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// AlphaVantage holds credentials for the Alpha Vantage quote API.
type AlphaVantage struct {
	APIKey          string `yaml:"api_key"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Gather controls the daily bar gathering job.
type Gather struct {
	Symbols    []string `yaml:"symbols"`
	StartDate  string   `yaml:"start_date"`
	BatchSize  int      `yaml:"batch_size"`
	MaxWorkers int      `yaml:"max_workers"`
	Schedule   string   `yaml:"schedule"` // cron expression for daemon mode
}

// Backtest defines simulation defaults: capital, execution friction, and
// risk/sizing limits.
type Backtest struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Commission     float64 `yaml:"commission"`
	Slippage       float64 `yaml:"slippage"`
	MaxPositions   int     `yaml:"max_positions"`
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	MaxPositionPct float64 `yaml:"max_position_pct"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults
// for unset backtest parameters.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued simulation parameters with the platform
// defaults: $100k capital, 0.1% commission, 0.05% slippage, 5 concurrent
// positions, 2% risk per trade, 10% capital cap per position.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = 100000
	}
	if cfg.Backtest.Commission <= 0 {
		cfg.Backtest.Commission = 0.001
	}
	if cfg.Backtest.Slippage <= 0 {
		cfg.Backtest.Slippage = 0.0005
	}
	if cfg.Backtest.MaxPositions <= 0 {
		cfg.Backtest.MaxPositions = 5
	}
	if cfg.Backtest.RiskPerTrade <= 0 {
		cfg.Backtest.RiskPerTrade = 0.02
	}
	if cfg.Backtest.MaxPositionPct <= 0 {
		cfg.Backtest.MaxPositionPct = 0.10
	}
	if cfg.AlphaVantage.RateLimitPerMin <= 0 {
		cfg.AlphaVantage.RateLimitPerMin = 5
	}
	if cfg.Gather.BatchSize <= 0 {
		cfg.Gather.BatchSize = 200
	}
	if cfg.Gather.MaxWorkers <= 0 {
		cfg.Gather.MaxWorkers = 4
	}
}
