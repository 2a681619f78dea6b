package agents

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// QualityAgent scores durable business quality: market position,
// operating stability, competitive moat and capital discipline. Equal
// sub-weights.
type QualityAgent struct{}

func NewQualityAgent() *QualityAgent { return &QualityAgent{} }

func (a *QualityAgent) Name() string { return NameQuality }

var defensiveSectors = map[string]bool{
	"Consumer Defensive": true,
	"Consumer Staples":   true,
	"Healthcare":         true,
	"Utilities":          true,
}

var cyclicalSectors = map[string]bool{
	"Energy":            true,
	"Basic Materials":   true,
	"Consumer Cyclical": true,
	"Industrials":       true,
}

func (a *QualityAgent) Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error) {
	if bundle == nil || bundle.Info == nil {
		return Degraded(NameQuality, "missing fundamentals snapshot", 0.1), nil
	}
	info := bundle.Info
	cov := &coverage{}

	position, positionDetail := scoreMarketPosition(info, cov)
	stability, stabilityDetail := scoreStability(bundle, cov)
	moat, moatDetail := scoreMoat(info, cov)
	discipline, disciplineDetail := scoreDiscipline(info, bundle.Cashflow, cov)

	confidence := cov.confidence()
	if confidence < 0.25 {
		return Degraded(NameQuality,
			fmt.Sprintf("only %d of %d quality inputs available", cov.present, cov.expected),
			confidence), nil
	}

	score := 0.25*position + 0.25*stability + 0.25*moat + 0.25*discipline
	reasoning := strings.Join([]string{positionDetail, stabilityDetail, moatDetail, disciplineDetail}, "; ")

	return finalize(NameQuality, score, confidence, reasoning, map[string]float64{
		"market_position":  position,
		"stability":        stability,
		"moat":             moat,
		"business_quality": discipline,
	}), nil
}

func scoreMarketPosition(info *marketdata.Info, cov *coverage) (float64, string) {
	var parts []float64
	tier := "unknown size"

	if cov.note(info.MarketCap != nil) {
		cap := *info.MarketCap
		switch {
		case cap >= 200e9:
			parts = append(parts, 90)
			tier = "mega cap"
		case cap >= 10e9:
			parts = append(parts, 75)
			tier = "large cap"
		case cap >= 2e9:
			parts = append(parts, 60)
			tier = "mid cap"
		case cap >= 300e6:
			parts = append(parts, 45)
			tier = "small cap"
		default:
			parts = append(parts, 30)
			tier = "micro cap"
		}
	}

	if cov.note(info.Exchange != "") {
		switch info.Exchange {
		case "NYSE", "NasdaqGS", "NASDAQ", "NMS", "NYQ":
			parts = append(parts, 80)
		default:
			parts = append(parts, 55)
		}
	}

	if cov.note(info.Sector != "") {
		switch {
		case defensiveSectors[info.Sector]:
			parts = append(parts, 70)
		case cyclicalSectors[info.Sector]:
			parts = append(parts, 50)
		default:
			parts = append(parts, 60)
		}
	}

	if len(parts) == 0 {
		return 50, "market position unknown"
	}
	return mean(parts), tier
}

func scoreStability(bundle *marketdata.Bundle, cov *coverage) (float64, string) {
	var parts []float64

	table := bundle.QuarterlyFinancials
	if table == nil {
		table = bundle.Financials
	}

	var revenues []float64
	if table != nil {
		revenues, _ = table.Row(marketdata.RowTotalRevenue)
	}
	if cov.note(len(revenues) >= 4) {
		cv := coefficientOfVariation(revenues[:minInt(len(revenues), 8)])
		// Choppy revenue reads poorly.
		parts = append(parts, linearScale(cv, 0.30, 0.02))
	}

	marginFloorOK := false
	if table != nil {
		gross, _ := table.Row(marketdata.RowGrossProfit)
		if cov.note(len(gross) >= 4 && len(revenues) >= 4) {
			floor := 1.0
			for i := 0; i < 4; i++ {
				if revenues[i] == 0 {
					continue
				}
				m := gross[i] / revenues[i]
				if m < floor {
					floor = m
				}
			}
			parts = append(parts, linearScale(floor, 0.05, 0.45))
			marginFloorOK = floor >= 0.20
		}
	} else {
		cov.note(false)
	}

	if len(parts) == 0 {
		return 50, "stability unknown"
	}
	score := mean(parts)
	detail := fmt.Sprintf("revenue stability %s", describeBand(score))
	if marginFloorOK {
		detail += " with protected margins"
	}
	return score, detail
}

func scoreMoat(info *marketdata.Info, cov *coverage) (float64, string) {
	var parts []float64

	if cov.note(info.GrossMargins != nil) {
		parts = append(parts, linearScale(*info.GrossMargins, 0.15, 0.60))
	}
	if cov.note(info.OperatingMargins != nil) {
		parts = append(parts, linearScale(*info.OperatingMargins, 0.0, 0.30))
	}
	if cov.note(info.ReturnOnAssets != nil) {
		parts = append(parts, linearScale(*info.ReturnOnAssets, 0.0, 0.15))
	}

	if len(parts) == 0 {
		return 50, "moat unknown"
	}
	score := mean(parts)
	return score, fmt.Sprintf("moat %s", describeBand(score))
}

func scoreDiscipline(info *marketdata.Info, cashflow *marketdata.StatementTable, cov *coverage) (float64, string) {
	var parts []float64
	var notes []string

	if cov.note(info.ReturnOnEquity != nil) {
		parts = append(parts, linearScale(*info.ReturnOnEquity, 0.0, 0.30))
	}

	// FCF conversion: free cash flow against operating cash flow.
	if cov.note(info.FreeCashflow != nil && info.OperatingCashflow != nil && *info.OperatingCashflow > 0) {
		conversion := *info.FreeCashflow / *info.OperatingCashflow
		parts = append(parts, linearScale(conversion, 0.2, 0.9))
	}

	if cashflow != nil {
		repurchase, ok := cashflow.Latest(marketdata.RowStockRepurchase)
		// Repurchases are cash outflows; negative means buying back.
		if cov.note(ok) {
			if repurchase < 0 {
				parts = append(parts, 75)
				notes = append(notes, "active buybacks")
			} else {
				parts = append(parts, 50)
			}
		}
	} else {
		cov.note(false)
	}

	if len(parts) == 0 {
		return 50, "capital discipline unknown"
	}
	score := mean(parts)
	detail := fmt.Sprintf("business quality %s", describeBand(score))
	if len(notes) > 0 {
		detail += " (" + strings.Join(notes, ", ") + ")"
	}
	return score, detail
}

func coefficientOfVariation(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 1
	}
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / math.Abs(m)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
