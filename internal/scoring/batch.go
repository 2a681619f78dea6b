package scoring

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// BatchItem is one symbol's outcome inside a batch. Error is a short
// human-readable reason; exactly one of Result/Error is set.
type BatchItem struct {
	Symbol string  `json:"symbol"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ScoreBatch scores a list of symbols with bounded fan-out. Duplicate
// symbols are collapsed so the provider sees each at most once, and
// the output preserves the deduplicated input order. Per-symbol
// failures land in the item's Error field; the batch itself always
// succeeds unless the context dies.
func (s *Scorer) ScoreBatch(ctx context.Context, symbols []string) []BatchItem {
	ordered := dedupe(symbols)
	items := make([]BatchItem, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchLimit)

	for i, sym := range ordered {
		g.Go(func() error {
			res, err := s.Score(gctx, sym, ScoreOptions{})
			if err != nil {
				items[i] = BatchItem{Symbol: sym, Error: err.Error()}
				return nil
			}
			items[i] = BatchItem{Symbol: res.Symbol, Result: res}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Smoke runs every agent once against a synthetic bundle and reports
// which passed. The health endpoint derives its status from the count.
func (s *Scorer) Smoke(ctx context.Context) map[string]bool {
	bundle := syntheticBundle()
	out := s.exec.ExecuteAll(ctx, bundle.Symbol, bundle)

	status := make(map[string]bool, len(agents.Names()))
	for _, name := range agents.Names() {
		res := out.Result(name)
		status[name] = res != nil && !res.Failed
	}
	return status
}

// syntheticBundle builds a minimal valid bundle for smoke checks. The
// values only need to be plausible enough that healthy agents produce
// a non-failed result.
func syntheticBundle() *marketdata.Bundle {
	bars := marketdata.GenerateBars(
		time.Now().AddDate(-2, 0, 0), 300, 100, 0.0005, 0.01, 42)

	roe := 0.18
	margins := 0.12
	price := bars[len(bars)-1].Close
	target := price * 1.1

	return &marketdata.Bundle{
		Symbol:  "_SMOKE",
		History: bars,
		Indicators: func() *marketdata.IndicatorSet {
			set := marketdata.NewIndicatorSet()
			set.SetScalar(marketdata.IndRSI, 55)
			set.SetScalar(marketdata.IndMFI, 55)
			set.SetScalar(marketdata.IndVWAP, price*0.99)
			set.SetScalar(marketdata.IndVolumeZScore, 0.5)
			return set
		}(),
		Info: &marketdata.Info{
			Name:            "Smoke Test Co",
			ReturnOnEquity:  &roe,
			ProfitMargins:   &margins,
			CurrentPrice:    &price,
			TargetMeanPrice: &target,
		},
	}
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := validation.NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
