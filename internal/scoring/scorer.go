// Package scoring orchestrates the scoring pipeline: provider bundle,
// weight resolution, parallel agent execution, composite aggregation
// and the categorical recommendation. One Scorer serves both the HTTP
// API and the backtest engine.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/cache"
	"github.com/ajitpratap0/stockfunk/internal/executor"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// Result is the composite verdict for one symbol.
type Result struct {
	Symbol         string           `json:"symbol"`
	Composite      float64          `json:"composite"`
	Confidence     float64          `json:"confidence"`
	Category       string           `json:"category"`
	Recommendation string           `json:"recommendation"`
	PerAgent       *agents.Bundle   `json:"per_agent"`
	Weights        regime.Weights   `json:"weights"`
	Regime         *regime.Snapshot `json:"regime,omitempty"`
	AsOf           time.Time        `json:"as_of"`
	CacheHit       bool             `json:"cache_hit,omitempty"`
}

// NewsEnricher supplies the optional LLM news-sentiment scalar. The
// scorer folds it into the bundle before agents run; agents stay pure.
type NewsEnricher interface {
	NewsScore(ctx context.Context, symbol string) (float64, bool)
}

// MinHealthyAgents is the floor for a servable composite: below it the
// result is mostly fallback scores and the API reports the system
// unavailable instead of serving it.
const MinHealthyAgents = 3

// Config tunes the scorer.
type Config struct {
	AdaptiveWeights bool           // consult the regime service for weights
	StaticWeights   regime.Weights // used when adaptive weights are off
	BatchLimit      int            // max in-flight symbols per batch
}

// DefaultConfig returns static default weights with a batch fan-out of 10.
func DefaultConfig() Config {
	return Config{
		StaticWeights: regime.StaticDefaultWeights(),
		BatchLimit:    10,
	}
}

// Scorer wires the pipeline together. All dependencies are narrow
// interfaces accepted at construction; the scorer owns none of them.
type Scorer struct {
	provider marketdata.Provider
	exec     *executor.Executor
	regimes  *regime.Service
	cache    *cache.Cache[*Result]
	enricher NewsEnricher
	cfg      Config
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithCache installs the analysis cache.
func WithCache(c *cache.Cache[*Result]) Option {
	return func(s *Scorer) { s.cache = c }
}

// WithRegimeService enables adaptive weight resolution.
func WithRegimeService(r *regime.Service) Option {
	return func(s *Scorer) { s.regimes = r }
}

// WithNewsEnricher installs the optional LLM news-sentiment source.
func WithNewsEnricher(e NewsEnricher) Option {
	return func(s *Scorer) { s.enricher = e }
}

// New builds a scorer over a provider and executor.
func New(provider marketdata.Provider, exec *executor.Executor, cfg Config, opts ...Option) (*Scorer, error) {
	if cfg.StaticWeights == nil {
		cfg.StaticWeights = regime.StaticDefaultWeights()
	}
	if err := cfg.StaticWeights.Validate(); err != nil {
		return nil, fmt.Errorf("static weights: %w", err)
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 10
	}
	s := &Scorer{provider: provider, exec: exec, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.AdaptiveWeights && s.regimes == nil {
		return nil, errors.New("adaptive weights enabled without a regime service")
	}
	return s, nil
}

// ScoreOptions modifies one scoring call.
type ScoreOptions struct {
	// AsOf scores with point-in-time data. Non-zero AsOf bypasses the
	// cache entirely: cached entries are always "latest".
	AsOf time.Time
	// Force skips the cache read (the result is still stored).
	Force bool
}

// Score produces the composite result for one symbol. It returns an
// error only when no result can be produced at all; agent failures
// degrade the confidence instead.
func (s *Scorer) Score(ctx context.Context, symbol string, opts ScoreOptions) (*Result, error) {
	start := time.Now()

	sym, err := validation.ValidateSymbol(symbol)
	if err != nil {
		metrics.ScoreRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	pointInTime := !opts.AsOf.IsZero()
	if s.cache != nil && !pointInTime && !opts.Force {
		if hit, ok := s.cache.Get(sym); ok {
			metrics.ScoreRequests.WithLabelValues("hit").Inc()
			metrics.CacheHits.Inc()
			out := *hit
			out.CacheHit = true
			return &out, nil
		}
		metrics.CacheMisses.Inc()
	}

	provStart := time.Now()
	bundle, err := s.provider.Comprehensive(ctx, sym, opts.AsOf)
	metrics.RecordProviderCall("comprehensive", err, time.Since(provStart).Seconds())
	if err != nil {
		metrics.ScoreRequests.WithLabelValues("error").Inc()
		if errors.Is(err, marketdata.ErrSymbolNotFound) {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", sym, marketdata.ErrUnavailable, err)
	}

	s.enrich(ctx, sym, bundle, pointInTime)

	weights, snap := s.resolveWeights(ctx)
	perAgent := s.exec.ExecuteAll(ctx, sym, bundle)

	composite, confidence := combine(perAgent, weights)
	result := &Result{
		Symbol:         sym,
		Composite:      composite,
		Confidence:     confidence,
		Category:       Category(composite, confidence),
		Recommendation: Recommendation(composite, confidence, perAgent),
		PerAgent:       perAgent,
		Weights:        weights,
		Regime:         snap,
		AsOf:           effectiveAsOf(opts.AsOf, bundle),
	}

	// Degraded results are never cached: the next request retries the
	// agents instead of replaying the outage for a full TTL.
	if s.cache != nil && !pointInTime && perAgent.Meta.SuccessCount >= MinHealthyAgents {
		s.cache.Set(sym, result)
		metrics.CacheSize.Set(float64(s.cache.Len()))
	}

	metrics.ScoreRequests.WithLabelValues("scored").Inc()
	metrics.ScoreDuration.Observe(time.Since(start).Seconds())

	log.Debug().
		Str("symbol", sym).
		Float64("composite", composite).
		Float64("confidence", confidence).
		Str("category", result.Category).
		Int("failed_agents", len(perAgent.Meta.FailedAgents)).
		Msg("Symbol scored")

	return result, nil
}

// enrich folds the optional news-sentiment scalar into the bundle.
// Point-in-time calls skip it: there is no historical news feed.
func (s *Scorer) enrich(ctx context.Context, symbol string, bundle *marketdata.Bundle, pointInTime bool) {
	if s.enricher == nil || pointInTime || bundle == nil || bundle.Info == nil {
		return
	}
	if bundle.Info.NewsSentiment != nil {
		return
	}
	if score, ok := s.enricher.NewsScore(ctx, symbol); ok {
		v := validation.Clamp(score, -1, 1)
		bundle.Info.NewsSentiment = &v
	}
}

// resolveWeights picks the weight vector: regime-derived when adaptive
// weights are on, static config otherwise. A regime fetch failure
// degrades to the fallback vector inside the service; scoring never
// blocks on it.
func (s *Scorer) resolveWeights(ctx context.Context) (regime.Weights, *regime.Snapshot) {
	if !s.cfg.AdaptiveWeights || s.regimes == nil {
		return s.cfg.StaticWeights.Clone(), nil
	}
	snap := s.regimes.Current(ctx, false)
	return snap.Weights.Clone(), snap
}

// combine computes the weighted composite score and confidence. Failed
// slots participate with their neutral 50 / zero confidence, which is
// exactly how degradation is priced in.
func combine(bundle *agents.Bundle, weights regime.Weights) (float64, float64) {
	var composite, confidence float64
	for _, name := range agents.Names() {
		res := bundle.Result(name)
		if res == nil {
			res = agents.FailedResult(name, "missing slot")
		}
		w := weights[name]
		composite += w * res.Score
		confidence += w * res.Confidence
	}
	return validation.ClampScore(composite), validation.ClampConfidence(confidence)
}

func effectiveAsOf(asOf time.Time, bundle *marketdata.Bundle) time.Time {
	if !asOf.IsZero() {
		return asOf
	}
	if len(bundle.History) > 0 {
		return bundle.History[len(bundle.History)-1].Date
	}
	return time.Now().UTC()
}
