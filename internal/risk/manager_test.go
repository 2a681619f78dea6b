package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func eventsOfType(m *Manager, et EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, TierHigh, TierFor(70.1))
	assert.Equal(t, TierMedium, TierFor(70))
	assert.Equal(t, TierMedium, TierFor(50))
	assert.Equal(t, TierLow, TierFor(49.9))

	assert.Equal(t, -0.30, TierHigh.StopThreshold())
	assert.Equal(t, -0.20, TierMedium.StopThreshold())
	assert.Equal(t, -0.10, TierLow.StopThreshold())
}

// Three tiers entered at 100, peak 120, prices walked down in lockstep.
// LOW exits first at 108 (-10% from 120), MEDIUM at 96, HIGH at 84.
func TestStopLossTiering(t *testing.T) {
	m := NewManager(DefaultConfig())

	type pos struct {
		tier    QualityTier
		peak    float64
		stopped bool
		stopAt  float64
	}
	positions := map[string]*pos{
		"HIGHQ": {tier: TierHigh, peak: 100},
		"MEDQ":  {tier: TierMedium, peak: 100},
		"LOWQ":  {tier: TierLow, peak: 100},
	}

	for price := 101.0; price <= 120; price++ {
		for sym, p := range positions {
			var stopped bool
			p.peak, stopped = m.CheckTrailingStop(sym, p.tier, p.peak, price, day)
			assert.False(t, stopped, "no stop on a rising day at %.0f", price)
		}
	}
	for _, p := range positions {
		require.Equal(t, 120.0, p.peak, "peak tracks the high")
	}

	for price := 119.0; price >= 80; price-- {
		for sym, p := range positions {
			if p.stopped {
				continue
			}
			var stopped bool
			p.peak, stopped = m.CheckTrailingStop(sym, p.tier, p.peak, price, day)
			if stopped {
				p.stopped = true
				p.stopAt = price
			}
		}
	}

	assert.Equal(t, 108.0, positions["LOWQ"].stopAt, "low tier cut at -10% from peak")
	assert.Equal(t, 96.0, positions["MEDQ"].stopAt, "medium tier cut at -20% from peak")
	assert.Equal(t, 84.0, positions["HIGHQ"].stopAt, "high tier cut at -30% from peak")
	assert.Len(t, eventsOfType(m, EventStopLoss), 3)
}

func TestPeakPriceNeverDecreases(t *testing.T) {
	m := NewManager(DefaultConfig())
	peak := 100.0
	prices := []float64{105, 98, 110, 90, 111, 95}
	prev := peak
	for _, px := range prices {
		peak, _ = m.CheckTrailingStop("AAPL", TierHigh, peak, px, day)
		assert.GreaterOrEqual(t, peak, prev)
		prev = peak
	}
	assert.Equal(t, 111.0, peak)
}

func TestDrawdownDefense(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.ObserveValue(100_000, day)
	assert.False(t, m.DefensiveMode())
	assert.Equal(t, 0.0, m.CashTarget())

	// 14% down: inside tolerance.
	m.ObserveValue(86_000, day)
	assert.False(t, m.DefensiveMode())

	// 16% down: defensive mode engages.
	m.ObserveValue(84_000, day)
	assert.True(t, m.DefensiveMode())
	assert.Equal(t, 0.50, m.CashTarget())
	require.Len(t, eventsOfType(m, EventDrawdownProtection), 1)

	// Partial recovery below the old peak: still defensive.
	m.ObserveValue(95_000, day)
	assert.True(t, m.DefensiveMode())

	// New peak: defensive mode exits.
	m.ObserveValue(101_000, day)
	assert.False(t, m.DefensiveMode())
	assert.Equal(t, 101_000.0, m.PeakValue())
	assert.Len(t, eventsOfType(m, EventDrawdownProtection), 2)
}

func TestPositionCapClipsAndRenormalizes(t *testing.T) {
	m := NewManager(DefaultConfig())

	targets := map[string]float64{
		"AAPL": 0.12,
		"MSFT": 0.05,
		"GOOG": 0.05,
	}
	out := m.ApplyConstraints(targets, nil, 0, day)

	assert.InDelta(t, 0.10, out["AAPL"], 1e-9, "clipped to the 10% cap")
	// Freed 2% spread proportionally over the other 10%.
	assert.InDelta(t, 0.06, out["MSFT"], 1e-9)
	assert.InDelta(t, 0.06, out["GOOG"], 1e-9)
	assert.NotEmpty(t, eventsOfType(m, EventPositionCap))
	assert.Equal(t, 0.12, targets["AAPL"], "input map untouched")
}

func TestPositionCapInfeasibleLeavesCash(t *testing.T) {
	m := NewManager(DefaultConfig())

	out := m.ApplyConstraints(map[string]float64{"AAPL": 0.5, "MSFT": 0.5}, nil, 0, day)
	assert.InDelta(t, 0.10, out["AAPL"], 1e-9)
	assert.InDelta(t, 0.10, out["MSFT"], 1e-9)
}

func TestSectorCapScalesProportionally(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = 0.50 // keep the position cap out of the way
	m := NewManager(cfg)

	targets := map[string]float64{
		"AAPL": 0.30,
		"MSFT": 0.30,
		"XOM":  0.20,
	}
	sectors := map[string]string{
		"AAPL": "Technology",
		"MSFT": "Technology",
		"XOM":  "Energy",
	}
	out := m.ApplyConstraints(targets, sectors, 0, day)

	// Technology 60% → 40%, members scaled evenly; freed 20% lands on XOM.
	assert.InDelta(t, 0.20, out["AAPL"], 1e-9)
	assert.InDelta(t, 0.20, out["MSFT"], 1e-9)
	assert.InDelta(t, 0.40, out["XOM"], 1e-9)
	assert.NotEmpty(t, eventsOfType(m, EventSectorCap))

	total := out["AAPL"] + out["MSFT"] + out["XOM"]
	assert.InDelta(t, 0.80, total, 1e-9, "gross exposure preserved")
}

func TestVolatilityScaling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = 0.50
	m := NewManager(cfg)

	targets := map[string]float64{"AAPL": 0.20, "MSFT": 0.20}

	calm := m.ApplyConstraints(targets, nil, 0.15, day)
	assert.InDelta(t, 0.20, calm["AAPL"], 1e-9, "below ceiling: untouched")

	stressed := m.ApplyConstraints(targets, nil, 0.35, day)
	assert.InDelta(t, 0.15, stressed["AAPL"], 1e-9, "scaled by 0.75")
	assert.InDelta(t, 0.15, stressed["MSFT"], 1e-9)
	assert.NotEmpty(t, eventsOfType(m, EventVolatilityScale))
}

func TestConstraintOutputNeverExceedsInputGross(t *testing.T) {
	m := NewManager(DefaultConfig())
	targets := map[string]float64{
		"A": 0.25, "B": 0.20, "C": 0.15, "D": 0.10, "E": 0.05,
	}
	sectors := map[string]string{
		"A": "Tech", "B": "Tech", "C": "Tech", "D": "Energy", "E": "Energy",
	}
	out := m.ApplyConstraints(targets, sectors, 0.40, day)

	var inGross, outGross float64
	for _, w := range targets {
		inGross += w
	}
	for sym, w := range out {
		outGross += w
		assert.LessOrEqual(t, w, m.cfg.MaxPositionSize+1e-9, sym)
	}
	assert.LessOrEqual(t, outGross, inGross+1e-9)
}

func TestAnnualizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
	assert.Equal(t, 0.0, AnnualizedVolatility([]float64{0.01}))

	// Constant returns: zero volatility.
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	assert.InDelta(t, 0, AnnualizedVolatility(flat), 1e-12)

	// Alternating ±2%: daily stdev ~2%, annualized ~32%.
	alt := make([]float64, 100)
	for i := range alt {
		if i%2 == 0 {
			alt[i] = 0.02
		} else {
			alt[i] = -0.02
		}
	}
	vol := AnnualizedVolatility(alt)
	assert.InDelta(t, 0.32, vol, 0.02)
}

func TestTrailingReturns(t *testing.T) {
	equity := []float64{100, 110, 99, 108.9}
	got := TrailingReturns(equity, 10)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.10, got[0], 1e-9)
	assert.InDelta(t, -0.10, got[1], 1e-9)

	windowed := TrailingReturns(equity, 2)
	assert.Len(t, windowed, 2)
}
