package agents

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Momentum lookbacks in trading days.
const (
	barsQuarter  = 63
	barsHalfYear = 126
	barsFullYear = 252
)

// MomentumAgent scores multi-horizon returns, moving-average posture,
// relative strength against the benchmark and trend consistency. Full
// scoring needs a year of daily history.
type MomentumAgent struct{}

func NewMomentumAgent() *MomentumAgent { return &MomentumAgent{} }

func (a *MomentumAgent) Name() string { return NameMomentum }

func (a *MomentumAgent) Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error) {
	if bundle == nil || len(bundle.History) == 0 {
		return Degraded(NameMomentum, "no price history", 0), nil
	}
	bars := bundle.History
	if len(bars) < barsFullYear {
		conf := float64(len(bars)) / float64(barsFullYear) * 0.5
		return Degraded(NameMomentum,
			fmt.Sprintf("%d bars of history, %d required", len(bars), barsFullYear),
			conf), nil
	}

	cov := &coverage{}
	closes := marketdata.Closes(bars)
	price := closes[len(closes)-1]

	returns, returnsDetail, horizonMetrics := scoreHorizonReturns(closes, cov)
	posture, postureDetail := scoreMAPosture(price, bundle.Indicators, cov)
	strength, strengthDetail := scoreRelativeStrength(closes, bundle.Benchmark, cov)
	consistency, consistencyDetail := scoreConsistency(closes, cov)

	score := 0.35*returns + 0.25*posture + 0.20*strength + 0.20*consistency
	reasoning := strings.Join([]string{returnsDetail, postureDetail, strengthDetail, consistencyDetail}, "; ")

	metrics := map[string]float64{
		"horizon_returns":   returns,
		"ma_posture":        posture,
		"relative_strength": strength,
		"trend_consistency": consistency,
	}
	for k, v := range horizonMetrics {
		metrics[k] = v
	}

	return finalize(NameMomentum, score, cov.confidence(), reasoning, metrics), nil
}

func trailingReturn(closes []float64, lookback int) (float64, bool) {
	n := len(closes)
	if n <= lookback || closes[n-1-lookback] == 0 {
		return 0, false
	}
	return closes[n-1]/closes[n-1-lookback] - 1, true
}

func scoreHorizonReturns(closes []float64, cov *coverage) (float64, string, map[string]float64) {
	horizons := []struct {
		name     string
		lookback int
		lo, hi   float64
	}{
		{"return_3m", barsQuarter, -0.15, 0.25},
		{"return_6m", barsHalfYear, -0.20, 0.35},
		{"return_12m", barsFullYear - 1, -0.25, 0.50},
	}

	var parts []float64
	metrics := make(map[string]float64, len(horizons))
	var twelveMonth float64

	for _, h := range horizons {
		r, ok := trailingReturn(closes, h.lookback)
		if !cov.note(ok) {
			continue
		}
		metrics[h.name] = r
		parts = append(parts, linearScale(r, h.lo, h.hi))
		if h.name == "return_12m" {
			twelveMonth = r
		}
	}

	if len(parts) == 0 {
		return 50, "horizon returns unavailable", metrics
	}
	score := mean(parts)
	return score, fmt.Sprintf("%s 12m return", pct(twelveMonth)), metrics
}

func scoreMAPosture(price float64, set *marketdata.IndicatorSet, cov *coverage) (float64, string) {
	var sma50, sma200 []float64
	if set != nil {
		sma50 = set.Sequence(marketdata.IndSMA50)
		sma200 = set.Sequence(marketdata.IndSMA200)
	}

	has50 := cov.note(len(sma50) > 0)
	has200 := cov.note(len(sma200) > 0)
	if !has50 && !has200 {
		return 50, "moving averages unavailable"
	}

	score := 50.0
	var notes []string

	if has50 {
		if price > sma50[len(sma50)-1] {
			score += 12
		} else {
			score -= 12
			notes = append(notes, "below 50d MA")
		}
	}
	if has200 {
		if price > sma200[len(sma200)-1] {
			score += 12
		} else {
			score -= 12
			notes = append(notes, "below 200d MA")
		}
	}
	if has50 && has200 {
		fast := sma50[len(sma50)-1]
		slow := sma200[len(sma200)-1]
		if fast > slow {
			score += 16
			if crossedWithin(sma50, sma200, 40) {
				score += 10
				notes = append(notes, "recent golden cross")
			}
		} else {
			score -= 16
			if crossedWithin(sma200, sma50, 40) {
				score -= 10
				notes = append(notes, "recent death cross")
			}
		}
	}

	detail := "trading above its moving averages"
	if len(notes) > 0 {
		detail = strings.Join(notes, ", ")
	}
	return score, detail
}

// crossedWithin reports whether fast moved from at-or-below slow to
// above it inside the trailing window. Zero entries are warmup padding
// and are skipped.
func crossedWithin(fast, slow []float64, window int) bool {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	if n < 2 {
		return false
	}
	start := n - window
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		if fast[i-1] == 0 || slow[i-1] == 0 || fast[i] == 0 || slow[i] == 0 {
			continue
		}
		if fast[i-1] <= slow[i-1] && fast[i] > slow[i] {
			return true
		}
	}
	return false
}

func scoreRelativeStrength(closes []float64, benchmark []marketdata.Bar, cov *coverage) (float64, string) {
	stockReturn, okStock := trailingReturn(closes, barsHalfYear)
	benchCloses := marketdata.Closes(benchmark)
	benchReturn, okBench := trailingReturn(benchCloses, barsHalfYear)

	if !cov.note(okStock && okBench) {
		return 50, "no benchmark series"
	}

	diff := stockReturn - benchReturn
	score := linearScale(diff, -0.20, 0.20)
	verb := "outperforming"
	if diff < 0 {
		verb = "lagging"
	}
	return score, fmt.Sprintf("%s the benchmark by %s over 6m", verb, pct(diff))
}

// scoreConsistency measures how many of the trailing twelve 21-bar
// blocks closed higher than they opened.
func scoreConsistency(closes []float64, cov *coverage) (float64, string) {
	const blockSize = 21
	const blocks = 12

	if !cov.note(len(closes) >= blockSize*blocks+1) {
		return 50, "history too short for consistency"
	}

	up := 0
	end := len(closes) - 1
	for b := 0; b < blocks; b++ {
		hi := end - b*blockSize
		lo := hi - blockSize
		if closes[lo] != 0 && closes[hi] > closes[lo] {
			up++
		}
	}

	frac := float64(up) / float64(blocks)
	return linearScale(frac, 0.25, 0.75), fmt.Sprintf("%d of %d recent months positive", up, blocks)
}
