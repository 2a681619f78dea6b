package indicators

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Standard lookbacks. Agents expect these periods behind the indicator
// names in marketdata.
const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	adxPeriod      = 14
	stochKPeriod   = 14
	stochDPeriod   = 3
	williamsPeriod = 14
	smaShort       = 50
	smaLong        = 200
	bbPeriod       = 20
	atrPeriod      = 14
	mfiPeriod      = 14
	cmfPeriod      = 20
	vwapPeriod     = 20
	volumeLookback = 20

	// seriesTail bounds stored series so cached bundles stay small.
	seriesTail = 60
)

// BuildSet computes every indicator the agents consume from a daily bar
// history. Indicators whose lookback exceeds the available history are
// simply absent from the set; consumers must check presence.
func BuildSet(bars []marketdata.Bar) *marketdata.IndicatorSet {
	set := marketdata.NewIndicatorSet()
	n := len(bars)
	if n == 0 {
		return set
	}

	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, bar := range bars {
		high[i] = bar.High
		low[i] = bar.Low
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	if rsi := RSI(closes, rsiPeriod); len(rsi) > 0 {
		if v, ok := lastOf(rsi); ok {
			set.SetScalar(marketdata.IndRSI, v)
		}
	}

	if macd, sig := MACD(closes, macdFast, macdSlow, macdSignal); len(macd) > 0 {
		set.SetSeries(marketdata.IndMACD, tail(macd, seriesTail))
		set.SetSeries(marketdata.IndMACDSignal, tail(sig, seriesTail))
		m, _ := lastOf(macd)
		s, _ := lastOf(sig)
		set.SetScalar(marketdata.IndMACDHist, m-s)
	}

	if adx, plusDI, minusDI, ok := ADX(high, low, closes, adxPeriod); ok {
		set.SetScalar(marketdata.IndADX, adx)
		set.SetScalar(marketdata.IndPlusDI, plusDI)
		set.SetScalar(marketdata.IndMinusDI, minusDI)
	}

	if k, d, ok := Stochastic(high, low, closes, stochKPeriod, stochDPeriod); ok {
		set.SetScalar(marketdata.IndStochK, k)
		set.SetScalar(marketdata.IndStochD, d)
	}

	if wr, ok := WilliamsR(high, low, closes, williamsPeriod); ok {
		set.SetScalar(marketdata.IndWilliamsR, wr)
	}

	if sma := SMA(closes, smaShort); len(sma) > 0 {
		set.SetSeries(marketdata.IndSMA50, tail(sma, seriesTail))
	}
	if sma := SMA(closes, smaLong); len(sma) > 0 {
		set.SetSeries(marketdata.IndSMA200, tail(sma, seriesTail))
	}

	if lower, middle, upper := Bollinger(closes, bbPeriod); len(middle) > 0 {
		if v, ok := lastOf(lower); ok {
			set.SetScalar(marketdata.IndBBLower, v)
		}
		if v, ok := lastOf(middle); ok {
			set.SetScalar(marketdata.IndBBMiddle, v)
		}
		if v, ok := lastOf(upper); ok {
			set.SetScalar(marketdata.IndBBUpper, v)
		}
	}

	if obv := OBV(closes, volumes); len(obv) > 0 {
		set.SetSeries(marketdata.IndOBV, tail(obv, seriesTail))
	}
	if ad := AccumulationDistribution(high, low, closes, volumes); len(ad) > 0 {
		set.SetSeries(marketdata.IndAD, tail(ad, seriesTail))
	}

	if mfi, ok := MFI(high, low, closes, volumes, mfiPeriod); ok {
		set.SetScalar(marketdata.IndMFI, mfi)
	}
	if cmf, ok := CMF(high, low, closes, volumes, cmfPeriod); ok {
		set.SetScalar(marketdata.IndCMF, cmf)
	}
	if vwap, ok := VWAP(high, low, closes, volumes, vwapPeriod); ok {
		set.SetScalar(marketdata.IndVWAP, vwap)
	}
	if z, ok := VolumeZScore(volumes, volumeLookback); ok {
		set.SetScalar(marketdata.IndVolumeZScore, z)
	}

	if atr, ok := ATR(high, low, closes, atrPeriod); ok {
		set.SetScalar(marketdata.IndATR, atr)
	}
	if natr, ok := NATR(high, low, closes, atrPeriod); ok {
		set.SetScalar(marketdata.IndNATR, natr)
	}

	log.Debug().
		Int("bars", n).
		Int("scalars", len(set.Scalars)).
		Int("series", len(set.Series)).
		Msg("Indicator set built")

	return set
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
