package agents

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// FundamentalsAgent scores profitability, growth, financial health and
// valuation from the fundamentals snapshot and statement tables. Equal
// sub-weights. Price history is not consulted.
type FundamentalsAgent struct{}

func NewFundamentalsAgent() *FundamentalsAgent { return &FundamentalsAgent{} }

func (a *FundamentalsAgent) Name() string { return NameFundamentals }

func (a *FundamentalsAgent) Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error) {
	if bundle == nil || bundle.Info == nil {
		return Degraded(NameFundamentals, "missing fundamentals snapshot", 0.1), nil
	}
	info := bundle.Info
	cov := &coverage{}

	profitability, profitDetail := scoreProfitability(info, cov)
	growth, growthDetail := scoreGrowth(info, bundle.QuarterlyFinancials, cov)
	health, healthDetail := scoreHealth(info, cov)
	valuation, valuationDetail := scoreValuation(info, cov)

	confidence := cov.confidence()
	if confidence < 0.25 {
		return Degraded(NameFundamentals,
			fmt.Sprintf("only %d of %d fundamental inputs available", cov.present, cov.expected),
			confidence), nil
	}

	score := 0.25*profitability + 0.25*growth + 0.25*health + 0.25*valuation

	reasoning := strings.Join([]string{profitDetail, growthDetail, healthDetail, valuationDetail}, "; ")

	return finalize(NameFundamentals, score, confidence, reasoning, map[string]float64{
		"profitability":    profitability,
		"growth":           growth,
		"financial_health": health,
		"valuation":        valuation,
	}), nil
}

func scoreProfitability(info *marketdata.Info, cov *coverage) (float64, string) {
	var parts []float64

	if cov.note(info.ProfitMargins != nil) {
		parts = append(parts, linearScale(*info.ProfitMargins, -0.05, 0.25))
	}
	if cov.note(info.OperatingMargins != nil) {
		parts = append(parts, linearScale(*info.OperatingMargins, -0.05, 0.30))
	}
	if cov.note(info.ReturnOnEquity != nil) {
		parts = append(parts, linearScale(*info.ReturnOnEquity, -0.10, 0.30))
	}
	if cov.note(info.ReturnOnAssets != nil) {
		parts = append(parts, linearScale(*info.ReturnOnAssets, -0.05, 0.15))
	}

	if len(parts) == 0 {
		return 50, "profitability unknown"
	}
	score := mean(parts)
	return score, fmt.Sprintf("profitability %s", describeBand(score))
}

func scoreGrowth(info *marketdata.Info, quarterly *marketdata.StatementTable, cov *coverage) (float64, string) {
	var parts []float64

	revGrowth := info.RevenueGrowth
	if revGrowth == nil && quarterly != nil {
		// Fall back to YoY growth from the quarterly revenue row.
		if g, ok := yoyGrowth(quarterly, marketdata.RowTotalRevenue); ok {
			revGrowth = &g
		}
	}
	if cov.note(revGrowth != nil) {
		parts = append(parts, linearScale(*revGrowth, -0.15, 0.30))
	}
	if cov.note(info.EarningsGrowth != nil) {
		parts = append(parts, linearScale(*info.EarningsGrowth, -0.20, 0.40))
	}

	if len(parts) == 0 {
		return 50, "growth unknown"
	}
	score := mean(parts)
	detail := fmt.Sprintf("growth %s", describeBand(score))
	if revGrowth != nil {
		detail = fmt.Sprintf("growth %s (revenue %s YoY)", describeBand(score), pct(*revGrowth))
	}
	return score, detail
}

func scoreHealth(info *marketdata.Info, cov *coverage) (float64, string) {
	var parts []float64

	if cov.note(info.CurrentRatio != nil) {
		parts = append(parts, linearScale(*info.CurrentRatio, 0.5, 2.0))
	}
	if cov.note(info.DebtToEquity != nil) {
		// Lower leverage scores higher.
		parts = append(parts, linearScale(*info.DebtToEquity, 2.5, 0))
	}
	if cov.note(info.FreeCashflow != nil) {
		if *info.FreeCashflow > 0 {
			parts = append(parts, 80)
		} else {
			parts = append(parts, 20)
		}
	}

	if len(parts) == 0 {
		return 50, "balance sheet unknown"
	}
	score := mean(parts)
	return score, fmt.Sprintf("financial health %s", describeBand(score))
}

func scoreValuation(info *marketdata.Info, cov *coverage) (float64, string) {
	var parts []float64
	var peNote string

	if cov.note(info.TrailingPE != nil) {
		pe := *info.TrailingPE
		switch {
		case pe <= 0:
			// Negative earnings; worst valuation read.
			parts = append(parts, 15)
		default:
			parts = append(parts, linearScale(pe, 45, 8))
		}
		peNote = fmt.Sprintf(" (P/E %.1f)", pe)
	}
	if cov.note(info.PriceToBook != nil) && *info.PriceToBook > 0 {
		parts = append(parts, linearScale(*info.PriceToBook, 10, 0.8))
	}
	if cov.note(info.PEGRatio != nil) && *info.PEGRatio > 0 {
		parts = append(parts, linearScale(*info.PEGRatio, 3.0, 0.5))
	}

	if len(parts) == 0 {
		return 50, "valuation unknown"
	}
	score := mean(parts)
	return score, fmt.Sprintf("valuation %s%s", describeBand(score), peNote)
}

// yoyGrowth compares the latest period against the one four quarters
// back. Periods are stored most recent first.
func yoyGrowth(table *marketdata.StatementTable, row string) (float64, bool) {
	values, ok := table.Row(row)
	if !ok || len(values) < 5 || values[4] == 0 {
		return 0, false
	}
	return values[0]/values[4] - 1, true
}

func describeBand(score float64) string {
	switch {
	case score >= 75:
		return "strong"
	case score >= 55:
		return "solid"
	case score >= 40:
		return "mixed"
	case score >= 25:
		return "weak"
	default:
		return "poor"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
