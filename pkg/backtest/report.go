// Plain-text report generation for backtest results.
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ============================================================================
// REPORT GENERATION
// ============================================================================

// GenerateReport renders a human-readable summary of a run.
func GenerateReport(result *Result) string {
	m := result.Metrics
	var b strings.Builder

	rule := strings.Repeat("=", 72)
	fmt.Fprintf(&b, "%s\nBACKTEST REPORT  (engine %s)\n%s\n\n", rule, result.Metadata.EngineVersion, rule)

	fmt.Fprintf(&b, "Period:            %s to %s\n",
		m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Universe:          %d symbols, top %d, %s rebalancing\n",
		len(result.Config.Universe), result.Config.TopN, result.Config.Frequency)
	fmt.Fprintf(&b, "Initial Capital:   $%.2f\n", m.InitialCapital)
	fmt.Fprintf(&b, "Final Equity:      $%.2f\n\n", m.FinalEquity)

	fmt.Fprintf(&b, "Total Return:      %.2f%%\n", m.TotalReturnPct)
	fmt.Fprintf(&b, "CAGR:              %.2f%%\n", m.CAGR)
	fmt.Fprintf(&b, "Benchmark Return:  %.2f%%\n", m.BenchmarkReturnPct)
	fmt.Fprintf(&b, "Alpha / Beta:      %.2f%% / %.2f\n\n", m.Alpha, m.Beta)

	fmt.Fprintf(&b, "Volatility:        %.2f%%\n", m.Volatility)
	fmt.Fprintf(&b, "Max Drawdown:      %.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(&b, "Sharpe / Sortino:  %.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)
	fmt.Fprintf(&b, "Calmar:            %.2f\n\n", m.CalmarRatio)

	fmt.Fprintf(&b, "Trades:            %d (%d wins, %d losses, %.1f%% win rate)\n",
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate)
	fmt.Fprintf(&b, "Profit Factor:     %.2f\n", m.ProfitFactor)
	fmt.Fprintf(&b, "Rebalances:        %d\n", len(result.Rebalances))
	fmt.Fprintf(&b, "Risk Events:       %d\n\n", len(result.RiskEvents))

	fmt.Fprintf(&b, "Note: %s\n%s\n", result.Metadata.Note, rule)
	return b.String()
}

// SaveJSON writes the full result to disk for later inspection.
func SaveJSON(result *Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling backtest result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing backtest result: %w", err)
	}
	return nil
}
