package regime

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Config holds the classifier cutoffs and caching policy. The cutoffs
// vary with the benchmark, so they are configuration rather than
// constants; the defaults are tuned for a broad equity index.
type Config struct {
	Benchmark    string        // benchmark symbol, default SPY
	LookbackDays int           // calendar days of history to fetch
	TrendCutoff  float64       // MA gap beyond which the trend is directional
	VolLow       float64       // annualized vol below this is LOW_VOL
	VolHigh      float64       // annualized vol above this is HIGH_VOL
	TTL          time.Duration // memoization window
	FetchTimeout time.Duration // budget for one benchmark fetch
}

// DefaultConfig returns the standard equity-benchmark configuration.
func DefaultConfig() Config {
	return Config{
		Benchmark:    marketdata.BenchmarkSymbol,
		LookbackDays: 90,
		TrendCutoff:  0.02,
		VolLow:       0.12,
		VolHigh:      0.22,
		TTL:          6 * time.Hour,
		FetchTimeout: 15 * time.Second,
	}
}

// Snapshot is one regime classification with its weight vector. Error
// is set instead of returning a failure: scoring must never block on a
// regime fetch.
type Snapshot struct {
	Label       Label     `json:"label"`
	Trend       string    `json:"trend"`
	Volatility  string    `json:"volatility"`
	Weights     Weights   `json:"weights"`
	Explanation string    `json:"explanation"`
	AsOf        time.Time `json:"as_of"`
	CacheHit    bool      `json:"cache_hit"`
	Error       string    `json:"error,omitempty"`

	// Observed classifier inputs, surfaced for the API explanation.
	MAGap         float64 `json:"ma_gap"`
	AnnualizedVol float64 `json:"annualized_vol"`
}

// Service classifies the market regime from the benchmark series and
// memoizes the last successful classification. Safe for concurrent
// callers; concurrent refreshes collapse into a single provider fetch.
type Service struct {
	cfg      Config
	provider marketdata.Provider

	mu      sync.RWMutex
	current *Snapshot

	group singleflight.Group
	now   func() time.Time
}

// NewService wires a regime service over a market data provider.
func NewService(provider marketdata.Provider, cfg Config) *Service {
	if cfg.Benchmark == "" {
		cfg.Benchmark = marketdata.BenchmarkSymbol
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 90
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Service{cfg: cfg, provider: provider, now: time.Now}
}

// Current returns the regime snapshot, refreshing when the memoized
// value is older than the TTL or force is set. It never returns an
// error: fetch failures yield the fallback weights with Error set.
func (s *Service) Current(ctx context.Context, force bool) *Snapshot {
	if !force {
		if snap := s.cached(); snap != nil {
			return snap
		}
	}

	v, _, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx), nil
	})
	return v.(*Snapshot)
}

// cached returns a copy of the memoized snapshot when still fresh.
func (s *Service) cached() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.now().Sub(s.current.AsOf) >= s.cfg.TTL {
		return nil
	}
	out := *s.current
	out.Weights = s.current.Weights.Clone()
	out.CacheHit = true
	return &out
}

func (s *Service) refresh(ctx context.Context) *Snapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	end := s.now()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)
	bars, err := s.provider.History(fetchCtx, s.cfg.Benchmark, start, end)
	if err == nil && len(bars) < 21 {
		err = marketdata.ErrUnavailable
	}
	if err != nil {
		log.Warn().Err(err).Str("benchmark", s.cfg.Benchmark).
			Msg("Regime fetch failed, falling back to default weights")
		return &Snapshot{
			Label:       FallbackLabel,
			Trend:       TrendSideways,
			Volatility:  VolNormal,
			Weights:     WeightsFor(FallbackLabel),
			Explanation: "Benchmark data unavailable; using default balanced weights.",
			AsOf:        s.now(),
			Error:       err.Error(),
		}
	}

	snap := s.classify(bars)

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	log.Info().
		Str("regime", string(snap.Label)).
		Float64("ma_gap", snap.MAGap).
		Float64("annualized_vol", snap.AnnualizedVol).
		Msg("Market regime refreshed")

	out := *snap
	out.Weights = snap.Weights.Clone()
	return &out
}

// classify derives the regime label from the benchmark bars.
func (s *Service) classify(bars []marketdata.Bar) *Snapshot {
	closes := marketdata.Closes(bars)

	trend, gap := classifyTrend(closes, s.cfg.TrendCutoff)
	vol, realized := classifyVolatility(marketdata.DailyReturns(bars), s.cfg.VolLow, s.cfg.VolHigh)
	label := ComposeLabel(trend, vol)

	return &Snapshot{
		Label:         label,
		Trend:         trend,
		Volatility:    vol,
		Weights:       WeightsFor(label),
		Explanation:   explain(trend, vol, gap, realized),
		AsOf:          s.now(),
		MAGap:         gap,
		AnnualizedVol: realized,
	}
}

// classifyTrend compares a 10-day and a 20-day moving average of the
// close series; a gap beyond the cutoff in either direction makes the
// trend directional.
func classifyTrend(closes []float64, cutoff float64) (string, float64) {
	shortMA := movingAverage(closes, 10)
	longMA := movingAverage(closes, 20)
	if longMA == 0 {
		return TrendSideways, 0
	}
	gap := (shortMA - longMA) / longMA
	switch {
	case gap > cutoff:
		return TrendBull, gap
	case gap < -cutoff:
		return TrendBear, gap
	default:
		return TrendSideways, gap
	}
}

// classifyVolatility buckets annualized realized volatility of daily
// close-to-close returns.
func classifyVolatility(returns []float64, low, high float64) (string, float64) {
	if len(returns) < 2 {
		return VolNormal, 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	annualized := math.Sqrt(variance) * math.Sqrt(252)
	switch {
	case annualized < low:
		return VolLow, annualized
	case annualized > high:
		return VolHigh, annualized
	default:
		return VolNormal, annualized
	}
}

func movingAverage(values []float64, window int) float64 {
	if len(values) < window || window <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window)
}

func explain(trend, vol string, gap, realized float64) string {
	trendText := map[string]string{
		TrendBull:     "the 10-day average sits above the 20-day average",
		TrendBear:     "the 10-day average sits below the 20-day average",
		TrendSideways: "the short and long moving averages are close together",
	}[trend]
	volText := map[string]string{
		VolLow:    "realized volatility is low",
		VolNormal: "realized volatility is in its normal range",
		VolHigh:   "realized volatility is elevated",
	}[vol]
	return fmt.Sprintf("Benchmark %s (%.2f%%) and %s (%.1f%% annualized).",
		trendText, gap*100, volText, realized*100)
}
