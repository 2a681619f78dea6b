// Performance metrics for completed backtest runs.
package backtest

import (
	"math"
	"time"
)

// riskFreeRatePct is the annual risk-free rate assumed by the Sharpe
// and Sortino ratios, in percent.
const riskFreeRatePct = 3.0

const tradingDaysPerYear = 252

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

// Metrics summarizes a run. Percentages are in percent, ratios are
// dimensionless, alpha is annualized percent.
type Metrics struct {
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`

	TotalReturnPct float64 `json:"total_return_pct"`
	CAGR           float64 `json:"cagr"`

	Volatility     float64 `json:"volatility"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`

	BenchmarkReturnPct float64 `json:"benchmark_return_pct"`
	Alpha              float64 `json:"alpha"`
	Beta               float64 `json:"beta"`
}

// CalculateMetrics computes the full metric set from the equity curve,
// the closed round trips and the benchmark close series covering the
// same calendar.
func CalculateMetrics(initialCapital float64, curve []EquityPoint, closed []ClosedPosition, benchmark []float64) *Metrics {
	m := &Metrics{InitialCapital: initialCapital}
	if len(curve) == 0 {
		return m
	}
	m.StartDate = curve[0].Date
	m.EndDate = curve[len(curve)-1].Date
	m.FinalEquity = curve[len(curve)-1].Equity

	if initialCapital > 0 {
		m.TotalReturnPct = (m.FinalEquity - initialCapital) / initialCapital * 100
		years := m.EndDate.Sub(m.StartDate).Hours() / 24 / 365.25
		if years > 0 && m.FinalEquity > 0 {
			m.CAGR = (math.Pow(m.FinalEquity/initialCapital, 1/years) - 1) * 100
		}
	}

	returns := dailyReturns(equitySeries(curve))
	m.Volatility = annualizedStdDev(returns) * 100
	m.MaxDrawdownPct = maxDrawdownPct(curve)
	if m.Volatility > 0 {
		m.SharpeRatio = (m.CAGR - riskFreeRatePct) / m.Volatility
	}
	if dd := downsideDeviation(returns) * 100; dd > 0 {
		m.SortinoRatio = (m.CAGR - riskFreeRatePct) / dd
	}
	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = m.CAGR / m.MaxDrawdownPct
	}

	tradeStatistics(m, closed)
	benchmarkComparison(m, returns, benchmark)
	return m
}

// tradeStatistics fills win/loss counters from closed round trips.
func tradeStatistics(m *Metrics, closed []ClosedPosition) {
	var totalWin, totalLoss float64
	for _, c := range closed {
		m.TotalTrades++
		if c.RealizedPL > 0 {
			m.WinningTrades++
			totalWin += c.RealizedPL
		} else if c.RealizedPL < 0 {
			m.LosingTrades++
			totalLoss += c.RealizedPL
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if totalLoss != 0 {
		m.ProfitFactor = totalWin / math.Abs(totalLoss)
	}
}

// benchmarkComparison regresses portfolio daily returns on benchmark
// daily returns: beta is the slope, alpha the annualized intercept.
func benchmarkComparison(m *Metrics, portfolioReturns, benchmark []float64) {
	if len(benchmark) < 2 {
		return
	}
	if first, last := benchmark[0], benchmark[len(benchmark)-1]; first > 0 {
		m.BenchmarkReturnPct = (last - first) / first * 100
	}

	benchReturns := dailyReturns(benchmark)
	n := len(portfolioReturns)
	if len(benchReturns) < n {
		n = len(benchReturns)
	}
	if n < 2 {
		return
	}
	p := portfolioReturns[len(portfolioReturns)-n:]
	b := benchReturns[len(benchReturns)-n:]

	var meanP, meanB float64
	for i := 0; i < n; i++ {
		meanP += p[i]
		meanB += b[i]
	}
	meanP /= float64(n)
	meanB /= float64(n)

	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (p[i] - meanP) * (b[i] - meanB)
		varB += (b[i] - meanB) * (b[i] - meanB)
	}
	if varB == 0 {
		return
	}
	m.Beta = cov / varB
	m.Alpha = (meanP - m.Beta*meanB) * tradingDaysPerYear * 100
}

// ============================================================================
// RETURN SERIES HELPERS
// ============================================================================

func dailyReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (series[i]-series[i-1])/series[i-1])
	}
	return returns
}

func annualizedStdDev(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

func downsideDeviation(returns []float64) float64 {
	var sum float64
	var n int
	for _, r := range returns {
		if r < 0 {
			sum += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum/float64(n)) * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdownPct(curve []EquityPoint) float64 {
	var peak, maxDD float64
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			if dd := (peak - point.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
