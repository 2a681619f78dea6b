package risk

import "math"

// tradingDaysPerYear annualizes daily statistics.
const tradingDaysPerYear = 252

// AnnualizedVolatility computes annualized realized volatility from a
// daily return series using the sample standard deviation. Fewer than
// two observations yield zero.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	n := len(dailyReturns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range dailyReturns {
		mean += r
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range dailyReturns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

// TrailingReturns converts the tail of an equity curve into daily
// returns over at most window observations.
func TrailingReturns(equity []float64, window int) []float64 {
	if len(equity) < 2 {
		return nil
	}
	start := len(equity) - window - 1
	if start < 0 {
		start = 0
	}
	tail := equity[start:]
	returns := make([]float64, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (tail[i]-tail[i-1])/tail[i-1])
	}
	return returns
}
