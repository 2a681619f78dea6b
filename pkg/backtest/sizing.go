package backtest

import "math"

// ============================================================================
// KELLY SIZING
// ============================================================================

// Exposure scaling bounds for Kelly-based sizing. Half-Kelly is used
// because full Kelly assumes the edge estimate is exact; realized trade
// statistics are noisy.
const (
	minKellyTrades     = 20
	minKellyExposure   = 0.25
	kellyExposureScale = 4.0 // half-Kelly fraction of ~0.25 maps to full exposure
)

// KellyFraction returns the Kelly-optimal bet fraction for the given
// win probability and win/loss payoff sizes. Results are clamped to
// [0, 0.5]; a non-positive edge returns zero.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if winRate <= 0 || winRate >= 1 || avgWin <= 0 || avgLoss >= 0 {
		return 0
	}
	payoff := avgWin / math.Abs(avgLoss)
	f := winRate - (1-winRate)/payoff
	if f <= 0 {
		return 0
	}
	return math.Min(f, 0.5)
}

// HalfKellyFromTrades estimates the half-Kelly fraction from realized
// round trips. It returns zero until minKellyTrades have closed or
// when the sample shows no edge.
func HalfKellyFromTrades(closed []ClosedPosition) float64 {
	if len(closed) < minKellyTrades {
		return 0
	}
	var wins, losses int
	var totalWin, totalLoss float64
	for _, c := range closed {
		if c.RealizedPL > 0 {
			wins++
			totalWin += c.RealizedPL
		} else if c.RealizedPL < 0 {
			losses++
			totalLoss += c.RealizedPL
		}
	}
	if wins == 0 || losses == 0 {
		return 0
	}
	winRate := float64(wins) / float64(wins+losses)
	avgWin := totalWin / float64(wins)
	avgLoss := totalLoss / float64(losses)
	return KellyFraction(winRate, avgWin, avgLoss) / 2
}
