// Parameter sweeps over backtest configurations.
package backtest

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/risk"
)

// ============================================================================
// PARAMETER SWEEP
// ============================================================================

// SweepSpec enumerates the parameter values to cross. Empty slices
// keep the base config's value.
type SweepSpec struct {
	TopN         []int       `json:"top_n,omitempty"`
	MinComposite []float64   `json:"min_composite,omitempty"`
	Frequency    []Frequency `json:"frequency,omitempty"`
}

// SweepRun is one grid point's outcome. Err is set when the run could
// not complete; its metrics are nil.
type SweepRun struct {
	Config  Config   `json:"config"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// SweepSummary is the full grid ordered by Sharpe ratio, best first.
type SweepSummary struct {
	Runs []SweepRun `json:"runs"`
	Best *SweepRun  `json:"best,omitempty"`
}

// RunSweep runs the cross product of the spec over the base config.
// Runs execute sequentially: the scorer already fans out per rebalance
// and the point of a sweep is comparability, not speed.
func RunSweep(ctx context.Context, base Config, spec SweepSpec, provider marketdata.Provider, scorer Scorer) (*SweepSummary, error) {
	grid := expand(base, spec)
	log.Info().Int("runs", len(grid)).Msg("Starting parameter sweep")

	summary := &SweepSummary{Runs: make([]SweepRun, 0, len(grid))}
	for _, cfg := range grid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run := SweepRun{Config: cfg}
		engine, err := New(cfg, provider, scorer, risk.NewManager(cfg.Risk))
		if err == nil {
			var result *Result
			if result, err = engine.Run(ctx); err == nil {
				run.Metrics = result.Metrics
			}
		}
		if err != nil {
			run.Err = err.Error()
			log.Warn().Err(err).Int("top_n", cfg.TopN).Str("frequency", string(cfg.Frequency)).
				Msg("Sweep run failed")
		}
		summary.Runs = append(summary.Runs, run)
	}

	sort.SliceStable(summary.Runs, func(i, j int) bool {
		a, b := summary.Runs[i].Metrics, summary.Runs[j].Metrics
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.SharpeRatio > b.SharpeRatio
	})
	if len(summary.Runs) > 0 && summary.Runs[0].Metrics != nil {
		summary.Best = &summary.Runs[0]
	}
	return summary, nil
}

// expand builds the config cross product.
func expand(base Config, spec SweepSpec) []Config {
	topNs := spec.TopN
	if len(topNs) == 0 {
		topNs = []int{base.TopN}
	}
	minComposites := spec.MinComposite
	if len(minComposites) == 0 {
		minComposites = []float64{base.MinComposite}
	}
	frequencies := spec.Frequency
	if len(frequencies) == 0 {
		frequencies = []Frequency{base.Frequency}
	}

	grid := make([]Config, 0, len(topNs)*len(minComposites)*len(frequencies))
	for _, n := range topNs {
		for _, mc := range minComposites {
			for _, f := range frequencies {
				cfg := base
				cfg.TopN = n
				cfg.MinComposite = mc
				cfg.Frequency = f
				grid = append(grid, cfg)
			}
		}
	}
	return grid
}
