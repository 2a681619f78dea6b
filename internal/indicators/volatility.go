package indicators

import (
	"github.com/cinar/indicator/v2/volatility"
)

// Bollinger computes the Bollinger Bands series. The three outputs have
// the same length and are aligned to each other.
func Bollinger(closes []float64, period int) (lower, middle, upper []float64) {
	if period < 1 || len(closes) < period {
		return nil, nil, nil
	}

	bbIndicator := volatility.NewBollingerBandsWithPeriod[float64](period)
	// Compute emits (upper, middle, lower) in that order.
	upperChan, middleChan, lowerChan := bbIndicator.Compute(sliceToChan(closes))

	// Drain in lockstep; the computation emits triples.
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}
	return lower, middle, upper
}

// ATR computes the Average True Range for the latest bar using Wilder's
// smoothing.
func ATR(high, low, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period+1 || len(high) != n || len(low) != n {
		return 0, false
	}

	smoothed := smoothWilder(trueRanges(high, low, closes), period)
	return lastOf(smoothed)
}

// NATR is ATR normalized by the latest close, in percent. It makes
// volatility comparable across price levels.
func NATR(high, low, closes []float64, period int) (float64, bool) {
	atr, ok := ATR(high, low, closes, period)
	if !ok {
		return 0, false
	}
	last := closes[len(closes)-1]
	if last == 0 {
		return 0, false
	}
	return 100 * atr / last, true
}
