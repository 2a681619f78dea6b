package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Fixture holds the full history and reference data for one symbol.
// Comprehensive serves point-in-time views of it by truncating at asOf.
type Fixture struct {
	History             []Bar
	Info                *Info
	Financials          *StatementTable
	QuarterlyFinancials *StatementTable
	BalanceSheet        *StatementTable
	Cashflow            *StatementTable
}

// FixtureProvider serves deterministic in-memory data. It backs the
// offline backtest mode and most tests. BuildIndicators is injected so
// the indicator package stays a consumer of this one, not a dependency.
type FixtureProvider struct {
	mu              sync.RWMutex
	fixtures        map[string]*Fixture
	BuildIndicators func(bars []Bar) *IndicatorSet
}

// NewFixtureProvider creates an empty fixture provider.
func NewFixtureProvider() *FixtureProvider {
	return &FixtureProvider{
		fixtures: make(map[string]*Fixture),
	}
}

// Register adds or replaces the fixture for a symbol.
func (p *FixtureProvider) Register(symbol string, fixture *Fixture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixtures[symbol] = fixture
}

// Symbols returns all registered symbols.
func (p *FixtureProvider) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	symbols := make([]string, 0, len(p.fixtures))
	for s := range p.fixtures {
		symbols = append(symbols, s)
	}
	return symbols
}

// Comprehensive returns the point-in-time bundle for symbol. An empty
// registered history is served as-is; downstream validation decides
// whether that is actionable.
func (p *FixtureProvider) Comprehensive(ctx context.Context, symbol string, asOf time.Time) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	fixture, ok := p.fixtures[symbol]
	benchmark := p.fixtures[BenchmarkSymbol]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrSymbolNotFound
	}

	history := TruncateBars(fixture.History, asOf)
	bundle := &Bundle{
		Symbol:              symbol,
		AsOf:                asOf,
		History:             history,
		Info:                fixture.Info,
		Financials:          fixture.Financials,
		QuarterlyFinancials: fixture.QuarterlyFinancials,
		BalanceSheet:        fixture.BalanceSheet,
		Cashflow:            fixture.Cashflow,
	}
	if benchmark != nil && symbol != BenchmarkSymbol {
		bundle.Benchmark = TruncateBars(benchmark.History, asOf)
	}
	if p.BuildIndicators != nil && len(history) > 0 {
		bundle.Indicators = p.BuildIndicators(history)
	}
	return bundle, nil
}

// History returns bars within [start, end] inclusive.
func (p *FixtureProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	fixture, ok := p.fixtures[symbol]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrSymbolNotFound
	}

	var bars []Bar
	for _, bar := range fixture.History {
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// GenerateBars produces a deterministic daily price series for fixtures.
// drift is the per-day expected return, vol the per-day noise scale.
// Weekends are skipped so the calendar looks like an equity tape.
func GenerateBars(start time.Time, count int, basePrice, drift, vol float64, seed int64) []Bar {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- Non-cryptographic use: fixtures need reproducible randomness
	bars := make([]Bar, 0, count)
	price := basePrice
	date := start

	for len(bars) < count {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

		ret := drift + vol*rng.NormFloat64()
		open := price
		closePx := price * (1 + ret)
		high := maxFloat(open, closePx) * (1 + vol*0.3*rng.Float64())
		low := minFloat(open, closePx) * (1 - vol*0.3*rng.Float64())
		volume := 1_000_000 * (0.5 + rng.Float64())

		bars = append(bars, Bar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
		})

		price = closePx
		date = date.AddDate(0, 0, 1)
	}
	return bars
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
