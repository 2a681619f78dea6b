package scoring

import "github.com/ajitpratap0/stockfunk/internal/agents"

// Categories derived from the confidence-adjusted composite.
const (
	CategoryStrongBuy   = "Strong Buy"
	CategoryBuy         = "Buy"
	CategoryHold        = "Hold"
	CategoryUnderweight = "Underweight"
	CategorySell        = "Sell"
)

// Recommendation labels used by the narrative layer. Stricter cutoffs
// than the category mapping, plus the momentum veto.
const (
	RecStrongBuy = "STRONG BUY"
	RecBuy       = "BUY"
	RecWeakBuy   = "WEAK BUY"
	RecHold      = "HOLD"
	RecWeakSell  = "WEAK SELL"
	RecSell      = "SELL"
)

// Momentum veto: a clearly weak momentum read far below the composite
// forces SELL regardless of the other agents.
const (
	vetoMomentumScore = 30.0
	vetoCompositeGap  = 25.0
)

// adjusted discounts the composite by confidence: a high score nobody
// is confident in must not read as a buy.
func adjusted(composite, confidence float64) float64 {
	return composite * (0.5 + 0.5*confidence)
}

// Category maps the confidence-adjusted composite onto the five-level
// category scale.
func Category(composite, confidence float64) string {
	a := adjusted(composite, confidence)
	switch {
	case a >= 75:
		return CategoryStrongBuy
	case a >= 65:
		return CategoryBuy
	case a >= 50:
		return CategoryHold
	case a >= 35:
		return CategoryUnderweight
	default:
		return CategorySell
	}
}

// Recommendation maps the adjusted composite onto the six-level
// narrative scale and applies the momentum veto: holding into a clear
// downtrend is never recommended.
func Recommendation(composite, confidence float64, perAgent *agents.Bundle) string {
	if momentum := perAgent.Result(agents.NameMomentum); momentum != nil && !momentum.Failed {
		if momentum.Score < vetoMomentumScore && composite-momentum.Score >= vetoCompositeGap {
			return RecSell
		}
	}

	a := adjusted(composite, confidence)
	switch {
	case a >= 80:
		return RecStrongBuy
	case a >= 70:
		return RecBuy
	case a >= 60:
		return RecWeakBuy
	case a >= 45:
		return RecHold
	case a >= 35:
		return RecWeakSell
	default:
		return RecSell
	}
}
