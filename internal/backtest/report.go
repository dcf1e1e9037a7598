package backtest

import (
	"fmt"
	"math"
	"strings"
)

// Format renders the report as a human-readable text block for CLI output
// and logs.
func (r *Report) Format() string {
	var b strings.Builder
	line := strings.Repeat("=", 50)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "BACKTEST PERFORMANCE REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Initial Capital:    $%.2f\n", r.InitialCapital)
	fmt.Fprintf(&b, "Final Value:        $%.2f\n", r.FinalValue)
	fmt.Fprintf(&b, "Total Return:       %.2f%%\n", r.TotalReturnPct)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Total Trades:       %d\n", r.TotalTrades)
	fmt.Fprintf(&b, "Winning Trades:     %d\n", r.WinningTrades)
	fmt.Fprintf(&b, "Losing Trades:      %d\n", r.LosingTrades)
	fmt.Fprintf(&b, "Win Rate:           %.2f%%\n", r.WinRatePct)
	fmt.Fprintf(&b, "Avg Win:            $%.2f\n", r.AvgWin)
	fmt.Fprintf(&b, "Avg Loss:           $%.2f\n", r.AvgLoss)
	fmt.Fprintf(&b, "Profit Factor:      %s\n", formatProfitFactor(r.ProfitFactor))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Sharpe Ratio:       %.2f\n", r.SharpeRatio)
	fmt.Fprintf(&b, "Volatility:         %.2f%%\n", r.VolatilityPct)
	fmt.Fprintf(&b, "Max Drawdown:       %.2f%%\n", r.MaxDrawdownPct)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Avg Holding Days:   %.1f\n", r.AvgHoldingDays)
	fmt.Fprintf(&b, "Max Holding Days:   %d\n", r.MaxHoldingDays)
	fmt.Fprintf(&b, "Min Holding Days:   %d\n", r.MinHoldingDays)
	fmt.Fprintln(&b, line)
	return b.String()
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf (no losing trades)"
	}
	return fmt.Sprintf("%.2f", pf)
}
