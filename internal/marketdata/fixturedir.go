package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fixtureFile is the on-disk shape of one symbol's fixture.
type fixtureFile struct {
	Symbol              string          `json:"symbol"`
	History             []Bar           `json:"history"`
	Info                *Info           `json:"info,omitempty"`
	Financials          *StatementTable `json:"financials,omitempty"`
	QuarterlyFinancials *StatementTable `json:"quarterly_financials,omitempty"`
	BalanceSheet        *StatementTable `json:"balance_sheet,omitempty"`
	Cashflow            *StatementTable `json:"cashflow,omitempty"`
}

// LoadFixtureDir builds a fixture provider from a directory of
// <SYMBOL>.json files. Offline backtests run against such a directory
// instead of a live vendor.
func LoadFixtureDir(dir string, buildIndicators func(bars []Bar) *IndicatorSet) (*FixtureProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading fixture directory: %w", err)
	}

	p := NewFixtureProvider()
	p.BuildIndicators = buildIndicators

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- dir is operator-supplied config
		if err != nil {
			return nil, fmt.Errorf("reading fixture %s: %w", name, err)
		}
		var f fixtureFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding fixture %s: %w", name, err)
		}
		symbol := f.Symbol
		if symbol == "" {
			symbol = strings.ToUpper(strings.TrimSuffix(name, ".json"))
		}
		p.Register(symbol, &Fixture{
			History:             f.History,
			Info:                f.Info,
			Financials:          f.Financials,
			QuarterlyFinancials: f.QuarterlyFinancials,
			BalanceSheet:        f.BalanceSheet,
			Cashflow:            f.Cashflow,
		})
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no fixture files in %s", dir)
	}
	return p, nil
}
