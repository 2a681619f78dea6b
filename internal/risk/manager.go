package risk

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Config holds the risk policy parameters.
type Config struct {
	MaxDrawdown            float64 // drawdown fraction that triggers defensive mode
	DefensiveCashBuffer    float64 // target cash fraction while defensive
	VolCeiling             float64 // annualized portfolio vol above which exposure is scaled
	VolScaleFactor         float64 // multiplier applied to targets above the ceiling
	MaxPositionSize        float64 // per-symbol weight cap
	MaxSectorConcentration float64 // per-sector weight cap
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		MaxDrawdown:            0.15,
		DefensiveCashBuffer:    0.50,
		VolCeiling:             0.28,
		VolScaleFactor:         0.75,
		MaxPositionSize:        0.10,
		MaxSectorConcentration: 0.40,
	}
}

// Manager tracks portfolio peaks and applies the risk policy. It is
// single-threaded by contract: the backtest event loop is its sole
// caller.
type Manager struct {
	cfg   Config
	sinks []EventSink

	peakValue     float64
	defensiveMode bool
	events        []Event
}

// NewManager builds a manager. The structured-log sink is always
// installed; extra sinks (bus, alerting) are appended.
func NewManager(cfg Config, extra ...EventSink) *Manager {
	sinks := append([]EventSink{LogSink{}}, extra...)
	return &Manager{cfg: cfg, sinks: sinks}
}

// Events returns the ordered log of emitted events.
func (m *Manager) Events() []Event {
	return m.events
}

// DefensiveMode reports whether drawdown defense is active.
func (m *Manager) DefensiveMode() bool {
	return m.defensiveMode
}

// PeakValue returns the running peak portfolio value.
func (m *Manager) PeakValue() float64 {
	return m.peakValue
}

// CashTarget returns the minimum cash fraction to hold right now.
func (m *Manager) CashTarget() float64 {
	if m.defensiveMode {
		return m.cfg.DefensiveCashBuffer
	}
	return 0
}

// ObserveValue feeds the current portfolio value into drawdown
// tracking. Defensive mode engages when value falls more than
// MaxDrawdown below the running peak and disengages on a new peak.
func (m *Manager) ObserveValue(value float64, date time.Time) {
	if value > m.peakValue {
		m.peakValue = value
		if m.defensiveMode {
			m.defensiveMode = false
			m.emit(Event{
				Type:   EventDrawdownProtection,
				Detail: "portfolio recovered to a new peak, defensive mode off",
				Value:  value,
				Date:   date,
			})
		}
		return
	}
	if m.peakValue == 0 || m.defensiveMode {
		return
	}

	drawdown := (value - m.peakValue) / m.peakValue
	if drawdown < -m.cfg.MaxDrawdown {
		m.defensiveMode = true
		m.emit(Event{
			Type: EventDrawdownProtection,
			Detail: fmt.Sprintf("drawdown %.1f%% breached %.0f%% threshold, raising cash to %.0f%%",
				drawdown*100, m.cfg.MaxDrawdown*100, m.cfg.DefensiveCashBuffer*100),
			Value: drawdown,
			Date:  date,
		})
	}
}

// CheckTrailingStop updates a position's peak price and decides
// whether its tiered trailing stop fires. The stop is evaluated on
// drop from peak, never drop from entry, so unrealized profit is
// protected without surrendering early runs.
func (m *Manager) CheckTrailingStop(symbol string, tier QualityTier, peakPrice, currentPrice float64, date time.Time) (newPeak float64, stopped bool) {
	newPeak = math.Max(peakPrice, currentPrice)
	if newPeak <= 0 {
		return newPeak, false
	}

	dropFromPeak := (currentPrice - newPeak) / newPeak
	threshold := tier.StopThreshold()
	if dropFromPeak <= threshold {
		m.emit(Event{
			Type:   EventStopLoss,
			Symbol: symbol,
			Detail: fmt.Sprintf("%s-tier stop: %.1f%% from peak %.2f breached %.0f%% threshold",
				tier, dropFromPeak*100, newPeak, threshold*100),
			Value: dropFromPeak,
			Date:  date,
		})
		return newPeak, true
	}
	return newPeak, false
}

// ApplyConstraints transforms raw target weights into policy-compliant
// ones: volatility scaling first, then the per-position cap, then the
// sector cap, renormalizing after each clip. The input map is not
// mutated. Weights are fractions of total portfolio value; the sum of
// the output never exceeds the sum of the input.
func (m *Manager) ApplyConstraints(targets map[string]float64, sectors map[string]string, annualizedVol float64, date time.Time) map[string]float64 {
	out := make(map[string]float64, len(targets))
	for sym, w := range targets {
		if w > 0 {
			out[sym] = w
		}
	}
	if len(out) == 0 {
		return out
	}

	if m.cfg.VolCeiling > 0 && annualizedVol > m.cfg.VolCeiling {
		for sym := range out {
			out[sym] *= m.cfg.VolScaleFactor
		}
		m.emit(Event{
			Type: EventVolatilityScale,
			Detail: fmt.Sprintf("portfolio vol %.1f%% above %.0f%% ceiling, scaling exposure by %.2f",
				annualizedVol*100, m.cfg.VolCeiling*100, m.cfg.VolScaleFactor),
			Value: annualizedVol,
			Date:  date,
		})
	}

	m.capPositions(out, date)
	m.capSectors(out, sectors, date)
	return out
}

// capPositions clips any symbol above MaxPositionSize and spreads the
// excess across the uncapped names, keeping the gross exposure fixed.
// Water-filling terminates because each pass pins at least one symbol
// at the cap.
func (m *Manager) capPositions(weights map[string]float64, date time.Time) {
	limit := m.cfg.MaxPositionSize
	if limit <= 0 {
		return
	}
	// The cap may be infeasible (N names × cap < gross); keep the
	// clipped allocation and let cash absorb the remainder.
	capped := make(map[string]bool, len(weights))
	for iter := 0; iter < len(weights); iter++ {
		var excess, uncappedSum float64
		for sym, w := range weights {
			if capped[sym] {
				continue
			}
			if w > limit {
				excess += w - limit
				weights[sym] = limit
				capped[sym] = true
				m.emit(Event{
					Type:   EventPositionCap,
					Symbol: sym,
					Detail: fmt.Sprintf("weight %.1f%% clipped to %.0f%% cap", w*100, limit*100),
					Value:  w,
					Date:   date,
				})
			} else {
				uncappedSum += w
			}
		}
		if excess == 0 {
			return
		}
		if uncappedSum == 0 {
			return
		}
		scale := (uncappedSum + excess) / uncappedSum
		for sym, w := range weights {
			if !capped[sym] {
				weights[sym] = w * scale
			}
		}
	}
}

// capSectors scales down any sector above MaxSectorConcentration
// proportionally across its members, then renormalizes the remainder
// so gross exposure is preserved where feasible.
func (m *Manager) capSectors(weights map[string]float64, sectors map[string]string, date time.Time) {
	limit := m.cfg.MaxSectorConcentration
	if limit <= 0 || len(sectors) == 0 {
		return
	}

	sectorWeight := make(map[string]float64)
	for sym, w := range weights {
		if sector, ok := sectors[sym]; ok && sector != "" {
			sectorWeight[sector] += w
		}
	}

	// Deterministic iteration for reproducible backtests.
	names := make([]string, 0, len(sectorWeight))
	for sector := range sectorWeight {
		names = append(names, sector)
	}
	sort.Strings(names)

	freed := 0.0
	overweight := make(map[string]bool)
	for _, sector := range names {
		total := sectorWeight[sector]
		if total <= limit {
			continue
		}
		overweight[sector] = true
		scale := limit / total
		for sym, w := range weights {
			if sectors[sym] == sector {
				weights[sym] = w * scale
			}
		}
		freed += total - limit
		m.emit(Event{
			Type: EventSectorCap,
			Detail: fmt.Sprintf("sector %s at %.1f%% scaled down to %.0f%% cap",
				sector, total*100, limit*100),
			Value: total,
			Date:  date,
		})
	}
	if freed == 0 {
		return
	}

	// Redistribute onto symbols in sectors that are still under cap.
	var eligible float64
	for sym, w := range weights {
		if !overweight[sectors[sym]] {
			eligible += w
		}
	}
	if eligible == 0 {
		return
	}
	scale := (eligible + freed) / eligible
	for sym, w := range weights {
		if !overweight[sectors[sym]] {
			weights[sym] = w * scale
		}
	}
	// Redistribution may itself breach the per-position cap.
	m.capPositions(weights, date)
}
