// Package indicators computes the technical indicator set consumed by
// the scoring agents. RSI, EMA, MACD and Bollinger Bands come from
// cinar/indicator; the rest are implemented here because they are not
// available in cinar/indicator v2.
package indicators

import "math"

// sliceToChan feeds a slice into a closed buffered channel, the input
// shape cinar/indicator computations expect.
func sliceToChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// smoothWilder applies Wilder's smoothing method.
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)

	if n < period {
		return result
	}

	// First smoothed value is a simple average
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}

	return result
}

// rollingMean returns the trailing mean for each index >= period-1,
// aligned to the input: result[i] covers values[i-period+1 .. i].
// Earlier indexes are zero.
func rollingMean(values []float64, period int) []float64 {
	n := len(values)
	result := make([]float64, n)
	if n < period || period < 1 {
		return result
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func lastOf(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	v := values[len(values)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// trueRanges returns the TR series. tr[0] is high-low of the first bar.
func trueRanges(high, low, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	if n == 0 {
		return tr
	}
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]),
				math.Abs(low[i]-closes[i-1])))
	}
	return tr
}
