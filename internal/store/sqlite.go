package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"tradelab/internal/domain"
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const dateLayout = "2006-01-02"

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at       TEXT NOT NULL,
	strategy         TEXT NOT NULL,
	symbols          TEXT NOT NULL,
	start_date       TEXT NOT NULL,
	end_date         TEXT NOT NULL,
	initial_capital  REAL NOT NULL,
	final_value      REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	win_rate_pct     REAL NOT NULL,
	profit_factor    REAL,             -- NULL encodes +Inf (wins, no losses)
	sharpe_ratio     REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	volatility_pct   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	symbol       TEXT NOT NULL,
	entry_date   TEXT NOT NULL,
	exit_date    TEXT NOT NULL,
	entry_price  REAL NOT NULL,
	exit_price   REAL NOT NULL,
	shares       INTEGER NOT NULL,
	profit       REAL NOT NULL,
	return_pct   REAL NOT NULL,
	holding_days INTEGER NOT NULL,
	reason       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);

CREATE TABLE IF NOT EXISTS equity (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	date   TEXT NOT NULL,
	value  REAL NOT NULL,
	cash   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id);
`)
	return err
}

// SaveRun inserts a run summary plus its trade log and equity curve in a
// single transaction and returns the assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord, trades []domain.Trade, equity []domain.EquitySample) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	pf := sql.NullFloat64{Float64: run.ProfitFactor, Valid: !math.IsInf(run.ProfitFactor, 1)}

	res, err := tx.ExecContext(ctx, `
INSERT INTO runs (created_at, strategy, symbols, start_date, end_date,
	initial_capital, final_value, total_return_pct, total_trades,
	win_rate_pct, profit_factor, sharpe_ratio, max_drawdown_pct, volatility_pct)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339),
		run.Strategy,
		strings.Join(run.Symbols, ","),
		run.Start.Format(dateLayout),
		run.End.Format(dateLayout),
		run.InitialCapital,
		run.FinalValue,
		run.TotalReturnPct,
		run.TotalTrades,
		run.WinRatePct,
		pf,
		run.SharpeRatio,
		run.MaxDrawdownPct,
		run.VolatilityPct,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
INSERT INTO trades (run_id, symbol, entry_date, exit_date, entry_price,
	exit_price, shares, profit, return_pct, holding_days, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer tradeStmt.Close()

	for _, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx, runID, t.Symbol,
			t.EntryDate.Format(dateLayout), t.ExitDate.Format(dateLayout),
			t.EntryPrice, t.ExitPrice, t.Shares, t.Profit, t.ReturnPct,
			t.HoldingDays, t.Reason); err != nil {
			return 0, fmt.Errorf("inserting trade %s: %w", t.Symbol, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
INSERT INTO equity (run_id, date, value, cash) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer equityStmt.Close()

	for _, e := range equity {
		if _, err := equityStmt.ExecContext(ctx, runID,
			e.Date.Format(dateLayout), e.Value, e.Cash); err != nil {
			return 0, fmt.Errorf("inserting equity sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetRun retrieves a run summary by ID. A missing row yields sql.ErrNoRows.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, strategy, symbols, start_date, end_date,
	initial_capital, final_value, total_return_pct, total_trades,
	win_rate_pct, profit_factor, sharpe_ratio, max_drawdown_pct, volatility_pct
FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, strategy, symbols, start_date, end_date,
	initial_capital, final_value, total_return_pct, total_trades,
	win_rate_pct, profit_factor, sharpe_ratio, max_drawdown_pct, volatility_pct
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetTrades returns the trade log for a run in entry order.
func (s *SQLiteStore) GetTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, entry_date, exit_date, entry_price, exit_price, shares,
	profit, return_pct, holding_days, reason
FROM trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                   domain.Trade
			entryDate, exitDate string
		)
		if err := rows.Scan(&t.Symbol, &entryDate, &exitDate, &t.EntryPrice,
			&t.ExitPrice, &t.Shares, &t.Profit, &t.ReturnPct,
			&t.HoldingDays, &t.Reason); err != nil {
			return nil, err
		}
		if t.EntryDate, err = time.Parse(dateLayout, entryDate); err != nil {
			return nil, err
		}
		if t.ExitDate, err = time.Parse(dateLayout, exitDate); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetEquityCurve returns the equity curve for a run in date order.
func (s *SQLiteStore) GetEquityCurve(ctx context.Context, runID int64) ([]domain.EquitySample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date, value, cash FROM equity WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curve []domain.EquitySample
	for rows.Next() {
		var (
			e    domain.EquitySample
			date string
		)
		if err := rows.Scan(&date, &e.Value, &e.Cash); err != nil {
			return nil, err
		}
		if e.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, err
		}
		curve = append(curve, e)
	}
	return curve, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run       RunRecord
		createdAt string
		symbols   string
		start     string
		end       string
		pf        sql.NullFloat64
	)
	if err := row.Scan(&run.ID, &createdAt, &run.Strategy, &symbols, &start, &end,
		&run.InitialCapital, &run.FinalValue, &run.TotalReturnPct, &run.TotalTrades,
		&run.WinRatePct, &pf, &run.SharpeRatio, &run.MaxDrawdownPct,
		&run.VolatilityPct); err != nil {
		return nil, err
	}

	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if run.Start, err = time.Parse(dateLayout, start); err != nil {
		return nil, err
	}
	if run.End, err = time.Parse(dateLayout, end); err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	if pf.Valid {
		run.ProfitFactor = pf.Float64
	} else {
		run.ProfitFactor = math.Inf(1)
	}
	return &run, nil
}
