// Package regime classifies the current market into one of nine
// trend × volatility regimes and supplies the adaptive agent-weight
// vector for each. Classification is closed-form statistics over the
// benchmark series; no model training happens here.
package regime

import (
	"fmt"
	"math"

	"github.com/ajitpratap0/stockfunk/internal/agents"
)

// Trend labels.
const (
	TrendBull     = "BULL"
	TrendBear     = "BEAR"
	TrendSideways = "SIDEWAYS"
)

// Volatility labels.
const (
	VolLow    = "LOW_VOL"
	VolNormal = "NORMAL_VOL"
	VolHigh   = "HIGH_VOL"
)

// Label is the canonical composite regime string, "<trend>_<volatility>".
type Label string

// ComposeLabel builds the canonical label from its parts.
func ComposeLabel(trend, volatility string) Label {
	return Label(trend + "_" + volatility)
}

// FallbackLabel is returned when the benchmark series cannot be fetched.
const FallbackLabel = Label("SIDEWAYS_NORMAL_VOL")

// Weights maps the five agent names to their composite weights. Every
// vector in this package sums to 1 within WeightTolerance.
type Weights map[string]float64

// WeightTolerance bounds the allowed drift of a weight vector's sum from 1.
const WeightTolerance = 1e-4

// Validate checks that w covers exactly the five agents with
// non-negative weights summing to 1.
func (w Weights) Validate() error {
	if len(w) != len(agents.Names()) {
		return fmt.Errorf("weights have %d entries, want %d", len(w), len(agents.Names()))
	}
	sum := 0.0
	for _, name := range agents.Names() {
		v, ok := w[name]
		if !ok {
			return fmt.Errorf("weights missing agent %q", name)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for %q is %v, must be a non-negative real", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("weights sum to %.6f, want 1 ± %g", sum, WeightTolerance)
	}
	return nil
}

// Clone returns an independent copy so callers can hand weights across
// component boundaries without sharing mutable state.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// weightTable is the fixed 9-row regime → weights mapping. Bull markets
// lean momentum, bear markets lean quality and institutional flow with
// sentiment de-emphasized, sideways markets sit near the static default.
var weightTable = map[Label]Weights{
	ComposeLabel(TrendBull, VolLow): {
		agents.NameFundamentals: 0.25, agents.NameMomentum: 0.30,
		agents.NameQuality: 0.15, agents.NameSentiment: 0.20, agents.NameFlow: 0.10,
	},
	ComposeLabel(TrendBull, VolNormal): {
		agents.NameFundamentals: 0.30, agents.NameMomentum: 0.25,
		agents.NameQuality: 0.20, agents.NameSentiment: 0.15, agents.NameFlow: 0.10,
	},
	ComposeLabel(TrendBull, VolHigh): {
		agents.NameFundamentals: 0.20, agents.NameMomentum: 0.35,
		agents.NameQuality: 0.20, agents.NameSentiment: 0.10, agents.NameFlow: 0.15,
	},
	ComposeLabel(TrendBear, VolLow): {
		agents.NameFundamentals: 0.30, agents.NameMomentum: 0.10,
		agents.NameQuality: 0.35, agents.NameSentiment: 0.10, agents.NameFlow: 0.15,
	},
	ComposeLabel(TrendBear, VolNormal): {
		agents.NameFundamentals: 0.25, agents.NameMomentum: 0.10,
		agents.NameQuality: 0.35, agents.NameSentiment: 0.10, agents.NameFlow: 0.20,
	},
	ComposeLabel(TrendBear, VolHigh): {
		agents.NameFundamentals: 0.20, agents.NameMomentum: 0.10,
		agents.NameQuality: 0.40, agents.NameSentiment: 0.05, agents.NameFlow: 0.25,
	},
	ComposeLabel(TrendSideways, VolLow): {
		agents.NameFundamentals: 0.30, agents.NameMomentum: 0.20,
		agents.NameQuality: 0.25, agents.NameSentiment: 0.15, agents.NameFlow: 0.10,
	},
	ComposeLabel(TrendSideways, VolNormal): {
		agents.NameFundamentals: 0.30, agents.NameMomentum: 0.25,
		agents.NameQuality: 0.20, agents.NameSentiment: 0.15, agents.NameFlow: 0.10,
	},
	ComposeLabel(TrendSideways, VolHigh): {
		agents.NameFundamentals: 0.25, agents.NameMomentum: 0.15,
		agents.NameQuality: 0.30, agents.NameSentiment: 0.10, agents.NameFlow: 0.20,
	},
}

// WeightsFor returns the weight vector for a label, falling back to the
// SIDEWAYS_NORMAL_VOL row for anything unrecognized.
func WeightsFor(label Label) Weights {
	if w, ok := weightTable[label]; ok {
		return w.Clone()
	}
	return weightTable[FallbackLabel].Clone()
}

// StaticDefaultWeights is the fundamentals-leaning vector used when
// adaptive weights are disabled. It equals the BULL_NORMAL_VOL row.
func StaticDefaultWeights() Weights {
	return weightTable[ComposeLabel(TrendBull, VolNormal)].Clone()
}

// Labels returns all nine labels in stable order.
func Labels() []Label {
	trends := []string{TrendBull, TrendBear, TrendSideways}
	vols := []string{VolLow, VolNormal, VolHigh}
	out := make([]Label, 0, len(trends)*len(vols))
	for _, t := range trends {
		for _, v := range vols {
			out = append(out, ComposeLabel(t, v))
		}
	}
	return out
}
