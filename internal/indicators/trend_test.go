package indicators

import (
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	sma := SMA(values, 3)
	if len(sma) != len(values) {
		t.Fatalf("expected aligned output, got len %d", len(sma))
	}

	want := []float64{0, 0, 2, 3, 4}
	for i := range want {
		if !almostEqual(sma[i], want[i], 1e-9) {
			t.Errorf("sma[%d]: expected %.1f, got %.4f", i, want[i], sma[i])
		}
	}

	if SMA(values, 6) != nil {
		t.Error("expected nil when period exceeds data")
	}
}

func TestEMATracksRecentPrices(t *testing.T) {
	prices := risingSeries(60, 100, 1)
	ema := EMA(prices, 20)
	if len(ema) == 0 {
		t.Fatal("no EMA values calculated")
	}

	last := ema[len(ema)-1]
	if last <= prices[0] || last > prices[len(prices)-1] {
		t.Errorf("EMA %.2f should sit inside the rising range (%.0f, %.0f]",
			last, prices[0], prices[len(prices)-1])
	}
}

func TestMACD(t *testing.T) {
	t.Run("uptrend yields positive MACD", func(t *testing.T) {
		macd, sig := MACD(risingSeries(120, 100, 0.5), 12, 26, 9)
		if len(macd) == 0 || len(macd) != len(sig) {
			t.Fatalf("expected aligned non-empty outputs, got %d/%d", len(macd), len(sig))
		}
		if macd[len(macd)-1] <= 0 {
			t.Errorf("expected positive MACD in a steady uptrend, got %.4f", macd[len(macd)-1])
		}
	})

	t.Run("downtrend yields negative MACD", func(t *testing.T) {
		macd, _ := MACD(risingSeries(120, 200, -0.5), 12, 26, 9)
		if len(macd) == 0 {
			t.Fatal("no MACD values calculated")
		}
		if macd[len(macd)-1] >= 0 {
			t.Errorf("expected negative MACD in a steady downtrend, got %.4f", macd[len(macd)-1])
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		macd, sig := MACD(risingSeries(20, 100, 1), 12, 26, 9)
		if macd != nil || sig != nil {
			t.Error("expected nil outputs for short input")
		}
	})
}

func TestADX(t *testing.T) {
	t.Run("trending tape has directional strength", func(t *testing.T) {
		n := 60
		high := make([]float64, n)
		low := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			c := 100 + float64(i)
			closes[i] = c
			high[i] = c + 0.5
			low[i] = c - 0.5
		}

		adx, plusDI, minusDI, ok := ADX(high, low, closes, 14)
		if !ok {
			t.Fatal("expected ok")
		}
		if adx < 25 {
			t.Errorf("expected ADX >= 25 on a persistent trend, got %.2f", adx)
		}
		if plusDI <= minusDI {
			t.Errorf("expected +DI (%.2f) above -DI (%.2f) in an uptrend", plusDI, minusDI)
		}
	})

	t.Run("flat tape has no trend", func(t *testing.T) {
		n := 60
		high := make([]float64, n)
		low := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			closes[i] = 100
			high[i] = 100.5
			low[i] = 99.5
		}

		adx, _, _, ok := ADX(high, low, closes, 14)
		if !ok {
			t.Fatal("expected ok")
		}
		if adx > 5 {
			t.Errorf("expected near-zero ADX on a flat tape, got %.2f", adx)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		short := risingSeries(20, 100, 1)
		_, _, _, ok := ADX(short, short, short, 14)
		if ok {
			t.Error("expected not ok below 2*period bars")
		}
	})
}
