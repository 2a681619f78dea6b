package indicators

import (
	"github.com/cinar/indicator/v2/momentum"
)

// RSI computes the Relative Strength Index series.
func RSI(closes []float64, period int) []float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	return collect(rsiIndicator.Compute(sliceToChan(closes)))
}

// Stochastic computes the %K and %D oscillator values for the latest bar.
// %K is the raw stochastic over kPeriod, %D its dPeriod simple average.
func Stochastic(high, low, closes []float64, kPeriod, dPeriod int) (k, d float64, ok bool) {
	n := len(closes)
	if n < kPeriod+dPeriod-1 || kPeriod < 1 || dPeriod < 1 {
		return 0, 0, false
	}

	rawK := make([]float64, 0, dPeriod)
	for i := n - dPeriod; i < n; i++ {
		hi, lo := high[i], low[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > hi {
				hi = high[j]
			}
			if low[j] < lo {
				lo = low[j]
			}
		}
		if hi == lo {
			rawK = append(rawK, 50)
			continue
		}
		rawK = append(rawK, 100*(closes[i]-lo)/(hi-lo))
	}

	return rawK[len(rawK)-1], mean(rawK), true
}

// WilliamsR computes Williams %R for the latest bar. The value ranges
// from -100 (close at the period low) to 0 (close at the period high).
func WilliamsR(high, low, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if n < period || period < 1 {
		return 0, false
	}

	hi, lo := high[n-period], low[n-period]
	for i := n - period + 1; i < n; i++ {
		if high[i] > hi {
			hi = high[i]
		}
		if low[i] < lo {
			lo = low[i]
		}
	}
	if hi == lo {
		return -50, true
	}
	return -100 * (hi - closes[n-1]) / (hi - lo), true
}
