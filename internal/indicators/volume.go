package indicators

import "math"

// OBV computes the On-Balance Volume series.
func OBV(closes, volumes []float64) []float64 {
	n := len(closes)
	if n == 0 || len(volumes) != n {
		return nil
	}

	obv := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}
	return obv
}

// AccumulationDistribution computes the A/D line series. Each bar
// contributes volume scaled by the close location value.
func AccumulationDistribution(high, low, closes, volumes []float64) []float64 {
	n := len(closes)
	if n == 0 || len(high) != n || len(low) != n || len(volumes) != n {
		return nil
	}

	ad := make([]float64, n)
	running := 0.0
	for i := 0; i < n; i++ {
		rangeHL := high[i] - low[i]
		if rangeHL != 0 {
			clv := ((closes[i] - low[i]) - (high[i] - closes[i])) / rangeHL
			running += clv * volumes[i]
		}
		ad[i] = running
	}
	return ad
}

// MFI computes the Money Flow Index for the latest bar. It is a
// volume-weighted RSI over typical prices.
func MFI(high, low, closes, volumes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period+1 || len(high) != n || len(low) != n || len(volumes) != n {
		return 0, false
	}

	positive, negative := 0.0, 0.0
	for i := n - period; i < n; i++ {
		tp := (high[i] + low[i] + closes[i]) / 3
		prevTP := (high[i-1] + low[i-1] + closes[i-1]) / 3
		flow := tp * volumes[i]

		if tp > prevTP {
			positive += flow
		} else if tp < prevTP {
			negative += flow
		}
	}

	if negative == 0 {
		if positive == 0 {
			return 50, true
		}
		return 100, true
	}
	return 100 - 100/(1+positive/negative), true
}

// CMF computes the Chaikin Money Flow for the latest bar.
func CMF(high, low, closes, volumes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period || len(high) != n || len(low) != n || len(volumes) != n {
		return 0, false
	}

	mfVolume, volume := 0.0, 0.0
	for i := n - period; i < n; i++ {
		volume += volumes[i]
		rangeHL := high[i] - low[i]
		if rangeHL != 0 {
			clv := ((closes[i] - low[i]) - (high[i] - closes[i])) / rangeHL
			mfVolume += clv * volumes[i]
		}
	}

	if volume == 0 {
		return 0, false
	}
	return mfVolume / volume, true
}

// VWAP computes the rolling volume-weighted average price over period.
func VWAP(high, low, closes, volumes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period || len(high) != n || len(low) != n || len(volumes) != n {
		return 0, false
	}

	priceVolume, volume := 0.0, 0.0
	for i := n - period; i < n; i++ {
		tp := (high[i] + low[i] + closes[i]) / 3
		priceVolume += tp * volumes[i]
		volume += volumes[i]
	}

	if volume == 0 {
		return 0, false
	}
	return priceVolume / volume, true
}

// VolumeZScore measures how unusual the latest volume is against the
// trailing lookback window, in standard deviations.
func VolumeZScore(volumes []float64, lookback int) (float64, bool) {
	n := len(volumes)
	if lookback < 2 || n < lookback+1 {
		return 0, false
	}

	window := volumes[n-lookback-1 : n-1]
	m := mean(window)
	sd := stddev(window)
	if sd == 0 || math.IsNaN(sd) {
		return 0, false
	}
	return (volumes[n-1] - m) / sd, true
}
