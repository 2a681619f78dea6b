package agents

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// SentimentAgent scores the analyst-recommendation mix and the mean
// price-target upside, optionally blended with a pre-computed news
// sentiment scalar. The agent stays pure: any LLM work happens in the
// provider layer, which deposits its verdict in Info.NewsSentiment.
//
// Factor weights: analyst 80 / target 20 without news; 60 / 15 / 25
// when a news scalar is present.
type SentimentAgent struct{}

func NewSentimentAgent() *SentimentAgent { return &SentimentAgent{} }

func (a *SentimentAgent) Name() string { return NameSentiment }

func (a *SentimentAgent) Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error) {
	if bundle == nil || bundle.Info == nil {
		return Degraded(NameSentiment, "missing fundamentals snapshot", 0.1), nil
	}
	info := bundle.Info
	cov := &coverage{}

	analyst, analystOK, analystDetail := scoreAnalystMix(info)
	cov.note(analystOK)

	target, targetOK, targetDetail := scoreTargetUpside(info)
	cov.note(targetOK)

	news, newsOK := 0.0, info.NewsSentiment != nil
	if newsOK {
		// News scalar arrives in [-1, 1].
		news = linearScale(*info.NewsSentiment, -1, 1)
		cov.note(true)
	}

	if !analystOK && !targetOK && !newsOK {
		return Degraded(NameSentiment, "no analyst coverage or news signal", 0.1), nil
	}

	var score float64
	var metrics map[string]float64
	if newsOK {
		score = 0.60*analyst + 0.15*target + 0.25*news
		metrics = map[string]float64{
			"analyst_mix":    analyst,
			"target_upside":  target,
			"news_sentiment": news,
		}
	} else {
		score = 0.80*analyst + 0.20*target
		metrics = map[string]float64{
			"analyst_mix":   analyst,
			"target_upside": target,
		}
	}

	details := []string{analystDetail, targetDetail}
	if newsOK {
		details = append(details, fmt.Sprintf("news sentiment %s", describeBand(news)))
	}

	return finalize(NameSentiment, score, cov.confidence(), strings.Join(details, "; "), metrics), nil
}

// scoreAnalystMix maps the recommendation distribution onto [0,100]:
// strong buy 100, buy 75, hold 50, sell 25, strong sell 0. Falls back
// to the 1-5 consensus mean when counts are absent.
func scoreAnalystMix(info *marketdata.Info) (float64, bool, string) {
	counts := []struct {
		n      *float64
		weight float64
	}{
		{info.AnalystStrongBuy, 100},
		{info.AnalystBuy, 75},
		{info.AnalystHold, 50},
		{info.AnalystSell, 25},
		{info.AnalystStrongSell, 0},
	}

	total, weighted := 0.0, 0.0
	for _, c := range counts {
		if c.n == nil || *c.n < 0 {
			continue
		}
		total += *c.n
		weighted += *c.n * c.weight
	}
	if total > 0 {
		score := weighted / total
		return score, true, fmt.Sprintf("analyst mix %s across %.0f ratings", describeBand(score), total)
	}

	if info.RecommendationMean != nil && *info.RecommendationMean > 0 {
		// Consensus mean runs 1 (strong buy) to 5 (strong sell).
		score := linearScale(*info.RecommendationMean, 5, 1)
		return score, true, fmt.Sprintf("consensus mean %.1f", *info.RecommendationMean)
	}

	return 50, false, "no analyst coverage"
}

func scoreTargetUpside(info *marketdata.Info) (float64, bool, string) {
	if info.TargetMeanPrice == nil || info.CurrentPrice == nil || *info.CurrentPrice <= 0 {
		return 50, false, "no price target"
	}

	upside := *info.TargetMeanPrice / *info.CurrentPrice - 1
	score := linearScale(upside, -0.20, 0.40)
	return score, true, fmt.Sprintf("%s to mean target", pct(upside))
}
