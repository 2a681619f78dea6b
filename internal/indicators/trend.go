package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/trend"
)

// EMA computes the exponential moving average series.
func EMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}

	emaIndicator := trend.NewEmaWithPeriod[float64](period)
	return collect(emaIndicator.Compute(sliceToChan(values)))
}

// MACD computes the MACD and signal line series. Both outputs have the
// same length and are aligned to each other.
func MACD(closes []float64, fast, slow, signal int) (macd, sig []float64) {
	if len(closes) < slow+signal {
		return nil, nil
	}

	macdIndicator := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macdIndicator.Compute(sliceToChan(closes))

	// Drain in lockstep; the computation emits pairs.
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macd = append(macd, m)
		sig = append(sig, s)
	}
	return macd, sig
}

// SMA computes the simple moving average aligned to the input; entries
// before the first full window are zero.
func SMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}
	return rollingMean(values, period)
}

// ADX computes the Average Directional Index and the directional lines
// for the latest bar using Wilder's smoothing. Needs 2*period bars.
func ADX(high, low, closes []float64, period int) (adx, plusDI, minusDI float64, ok bool) {
	n := len(closes)
	if period < 1 || n < period*2 || len(high) != n || len(low) != n {
		return 0, 0, 0, false
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]),
				math.Abs(low[i]-closes[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	plusDIs := make([]float64, n)
	minusDIs := make([]float64, n)
	dx := make([]float64, n)

	for i := period; i < n; i++ {
		if smoothTR[i] != 0 {
			plusDIs[i] = 100 * smoothPlusDM[i] / smoothTR[i]
			minusDIs[i] = 100 * smoothMinusDM[i] / smoothTR[i]

			diSum := plusDIs[i] + minusDIs[i]
			if diSum != 0 {
				dx[i] = 100 * math.Abs(plusDIs[i]-minusDIs[i]) / diSum
			}
		}
	}

	adxValues := smoothWilder(dx, period)
	return adxValues[n-1], plusDIs[n-1], minusDIs[n-1], true
}
