package agents

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// FlowAgent reads institutional footprints out of volume: cumulative
// flow trends, money-flow oscillators, unusual activity and VWAP
// positioning. Composite weights 40/30/20/10.
type FlowAgent struct{}

func NewFlowAgent() *FlowAgent { return &FlowAgent{} }

func (a *FlowAgent) Name() string { return NameFlow }

func (a *FlowAgent) Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error) {
	if bundle == nil || len(bundle.History) == 0 {
		return Degraded(NameFlow, "no price history", 0), nil
	}
	if bundle.Indicators == nil {
		return Degraded(NameFlow, "no indicator bundle", 0.1), nil
	}
	if len(bundle.History) < 60 {
		conf := float64(len(bundle.History)) / 60 * 0.4
		return Degraded(NameFlow,
			fmt.Sprintf("%d bars of history, 60 required for flow analysis", len(bundle.History)),
			conf), nil
	}

	set := bundle.Indicators
	cov := &coverage{}

	trend, trendDetail, trendMetrics := scoreFlowTrends(set, cov)
	strength, strengthDetail := scoreMoneyFlow(set, cov)
	activity, activityDetail := scoreUnusualActivity(bundle, set, cov)
	vwap, vwapDetail := scoreVWAPGap(bundle, set, cov)

	score := 0.40*trend + 0.30*strength + 0.20*activity + 0.10*vwap
	reasoning := strings.Join([]string{trendDetail, strengthDetail, activityDetail, vwapDetail}, "; ")

	metrics := map[string]float64{
		"volume_flow_trends": trend,
		"money_flow":         strength,
		"unusual_activity":   activity,
		"vwap_positioning":   vwap,
	}
	for k, v := range trendMetrics {
		metrics[k] = v
	}

	return finalize(NameFlow, score, cov.confidence(), reasoning, metrics), nil
}

// scoreFlowTrends reads the OBV and A/D slopes over the stored window,
// each normalized by the series' mean magnitude so symbols of any size
// compare on the same scale.
func scoreFlowTrends(set *marketdata.IndicatorSet, cov *coverage) (float64, string, map[string]float64) {
	var parts []float64
	metrics := make(map[string]float64, 2)

	if slope, ok := normalizedSlope(set.Sequence(marketdata.IndOBV)); cov.note(ok) {
		metrics["obv_slope"] = slope
		parts = append(parts, linearScale(slope, -0.6, 0.6))
	}
	if slope, ok := normalizedSlope(set.Sequence(marketdata.IndAD)); cov.note(ok) {
		metrics["ad_slope"] = slope
		parts = append(parts, linearScale(slope, -0.6, 0.6))
	}

	if len(parts) == 0 {
		return 50, "flow series unavailable", metrics
	}
	score := mean(parts)
	direction := "accumulation"
	if score < 50 {
		direction = "distribution"
	}
	return score, fmt.Sprintf("volume flow shows %s", direction), metrics
}

// normalizedSlope fits the cumulative series against time and scales
// the total move by the mean magnitude of the series.
func normalizedSlope(series []float64) (float64, bool) {
	n := len(series)
	if n < 10 {
		return 0, false
	}

	magnitude := 0.0
	for _, v := range series {
		magnitude += math.Abs(v)
	}
	magnitude /= float64(n)
	if magnitude == 0 {
		return 0, false
	}

	return (series[n-1] - series[0]) / magnitude, true
}

func scoreMoneyFlow(set *marketdata.IndicatorSet, cov *coverage) (float64, string) {
	var parts []float64
	var notes []string

	if mfi, ok := set.Scalar(marketdata.IndMFI); cov.note(ok) {
		switch {
		case mfi >= 80:
			parts = append(parts, 65)
			notes = append(notes, "MFI overbought")
		case mfi >= 60:
			parts = append(parts, 85)
			notes = append(notes, "strong money inflow")
		case mfi >= 40:
			parts = append(parts, 50)
		case mfi >= 20:
			parts = append(parts, 30)
			notes = append(notes, "money outflow")
		default:
			parts = append(parts, 20)
			notes = append(notes, "MFI oversold")
		}
	}

	if cmf, ok := set.Scalar(marketdata.IndCMF); cov.note(ok) {
		switch {
		case cmf >= 0.20:
			parts = append(parts, 85)
		case cmf >= 0.05:
			parts = append(parts, 70)
		case cmf > -0.05:
			parts = append(parts, 50)
		case cmf > -0.20:
			parts = append(parts, 30)
		default:
			parts = append(parts, 15)
		}
	}

	if len(parts) == 0 {
		return 50, "money flow unavailable"
	}
	score := mean(parts)
	detail := fmt.Sprintf("money flow %s", describeBand(score))
	if len(notes) > 0 {
		detail = strings.Join(notes, ", ")
	}
	return score, detail
}

// scoreUnusualActivity pairs the volume z-score with the short-window
// price direction: heavy volume into strength reads as accumulation,
// into weakness as distribution.
func scoreUnusualActivity(bundle *marketdata.Bundle, set *marketdata.IndicatorSet, cov *coverage) (float64, string) {
	z, ok := set.Scalar(marketdata.IndVolumeZScore)
	if !cov.note(ok) {
		return 50, "volume baseline unavailable"
	}

	closes := marketdata.Closes(bundle.History)
	recentUp := false
	if r, ok := trailingReturn(closes, 5); ok {
		recentUp = r > 0
	}

	abs := math.Abs(z)
	switch {
	case z >= 2 && recentUp:
		return 85, fmt.Sprintf("volume surge %.1fσ into strength", z)
	case z >= 2:
		return 25, fmt.Sprintf("volume surge %.1fσ into weakness", z)
	case z >= 1 && recentUp:
		return 65, "elevated volume on up days"
	case z >= 1:
		return 35, "elevated volume on down days"
	case abs < 1:
		return 50, "volume near baseline"
	default:
		return 45, "volume drying up"
	}
}

func scoreVWAPGap(bundle *marketdata.Bundle, set *marketdata.IndicatorSet, cov *coverage) (float64, string) {
	vwap, ok := set.Scalar(marketdata.IndVWAP)
	price, okPrice := bundle.LastClose()
	if !cov.note(ok && okPrice && vwap > 0) {
		return 50, "VWAP unavailable"
	}

	gap := (price - vwap) / vwap
	switch {
	case gap > 0.05:
		return 55, fmt.Sprintf("extended %s above VWAP", pct(gap))
	case gap > 0:
		return 70, fmt.Sprintf("holding %s above VWAP", pct(gap))
	case gap > -0.05:
		return 35, fmt.Sprintf("%s below VWAP", pct(-gap))
	default:
		return 25, fmt.Sprintf("deep %s below VWAP", pct(-gap))
	}
}
