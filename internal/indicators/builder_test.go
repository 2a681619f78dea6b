package indicators

import (
	"testing"
	"time"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

func TestBuildSet(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2023-01-02")
	bars := marketdata.GenerateBars(start, 260, 100, 0.0005, 0.015, 42)

	set := BuildSet(bars)

	wantScalars := []string{
		marketdata.IndRSI,
		marketdata.IndMACDHist,
		marketdata.IndADX,
		marketdata.IndPlusDI,
		marketdata.IndMinusDI,
		marketdata.IndStochK,
		marketdata.IndStochD,
		marketdata.IndWilliamsR,
		marketdata.IndBBUpper,
		marketdata.IndBBMiddle,
		marketdata.IndBBLower,
		marketdata.IndMFI,
		marketdata.IndCMF,
		marketdata.IndVWAP,
		marketdata.IndVolumeZScore,
		marketdata.IndATR,
		marketdata.IndNATR,
	}
	for _, name := range wantScalars {
		if _, ok := set.Scalar(name); !ok {
			t.Errorf("expected scalar %q with 260 bars", name)
		}
	}

	wantSeries := []string{
		marketdata.IndMACD,
		marketdata.IndMACDSignal,
		marketdata.IndSMA50,
		marketdata.IndSMA200,
		marketdata.IndOBV,
		marketdata.IndAD,
	}
	for _, name := range wantSeries {
		if len(set.Sequence(name)) == 0 {
			t.Errorf("expected series %q with 260 bars", name)
		}
	}

	if rsi, _ := set.Scalar(marketdata.IndRSI); rsi < 0 || rsi > 100 {
		t.Errorf("RSI %.2f out of [0, 100]", rsi)
	}
}

func TestBuildSetBoundsSeriesLength(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2020-01-02")
	bars := marketdata.GenerateBars(start, 1000, 100, 0.0003, 0.01, 7)

	set := BuildSet(bars)
	for name, series := range set.Series {
		if len(series) > seriesTail {
			t.Errorf("series %q has %d points, cap is %d", name, len(series), seriesTail)
		}
	}
}

func TestBuildSetShortHistory(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2024-01-02")
	bars := marketdata.GenerateBars(start, 30, 100, 0.001, 0.01, 3)

	set := BuildSet(bars)

	if len(set.Sequence(marketdata.IndSMA200)) != 0 {
		t.Error("SMA200 must be absent with 30 bars")
	}
	if _, ok := set.Scalar(marketdata.IndRSI); !ok {
		t.Error("RSI should still compute with 30 bars")
	}
}

func TestBuildSetEmptyHistory(t *testing.T) {
	set := BuildSet(nil)
	if len(set.Scalars) != 0 || len(set.Series) != 0 {
		t.Error("empty history must produce an empty set")
	}
}
