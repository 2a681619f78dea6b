package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/cache"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

const sentimentSystemPrompt = `You are a financial news analyst. Given a stock ticker, assess the aggregate tone of recent public news coverage for that company. Respond with ONLY a JSON object of the form {"score": <number>, "summary": "<one sentence>"} where score is between -1.0 (very negative coverage) and 1.0 (very positive coverage). Use 0.0 when coverage is neutral or you have no basis to judge.`

// sentimentVerdict is the JSON shape the model is asked to emit.
type sentimentVerdict struct {
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
}

// SentimentEnricher asks the LLM for a news tone scalar per symbol.
// Verdicts are cached so a batch scoring the same universe does not
// re-query the model. Failures degrade to "no signal": scoring carries
// on without the news factor.
type SentimentEnricher struct {
	client *Client
	cache  *cache.Cache[float64]
	logger zerolog.Logger
}

// NewSentimentEnricher builds an enricher with a one-hour verdict cache.
func NewSentimentEnricher(client *Client) *SentimentEnricher {
	return &SentimentEnricher{
		client: client,
		cache:  cache.New[float64](512, time.Hour),
		logger: config.NewLogger("llm_sentiment"),
	}
}

// NewsScore returns the news tone scalar in [-1, 1] for symbol. The
// boolean is false when no verdict could be obtained.
func (e *SentimentEnricher) NewsScore(ctx context.Context, symbol string) (float64, bool) {
	if score, ok := e.cache.Get(symbol); ok {
		return score, true
	}

	prompt := fmt.Sprintf("Ticker: %s\nAssess recent news coverage tone.", symbol)
	content, err := e.client.CompleteWithSystem(ctx, sentimentSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("News sentiment unavailable")
		return 0, false
	}

	verdict, err := parseVerdict(content)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Unparseable sentiment verdict")
		return 0, false
	}

	score := validation.Clamp(verdict.Score, -1, 1)
	e.cache.Set(symbol, score)
	e.logger.Debug().Str("symbol", symbol).Float64("score", score).Msg("News sentiment scored")
	return score, true
}

// parseVerdict extracts the JSON object from the model output, which
// may be wrapped in prose or a code fence.
func parseVerdict(content string) (*sentimentVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var v sentimentVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("decoding verdict: %w", err)
	}
	return &v, nil
}
