// Package backtest simulates the scoring pipeline over a historical
// calendar: periodic rebalancing into the top-ranked symbols, daily
// risk management, and an equity curve with full trade accounting.
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/risk"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
)

// EngineVersion is recorded in result metadata so stored runs can be
// compared across engine revisions.
const EngineVersion = "2.1.0"

// biasNote is attached to every result. Fundamentals and sentiment
// inputs are as-of-now snapshots rather than true point-in-time data.
const biasNote = "Fundamentals and sentiment use current snapshots, not point-in-time data; " +
	"historical results carry an estimated 5-10% upward bias."

// ============================================================================
// CONFIGURATION
// ============================================================================

// Frequency is the rebalance cadence.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Config describes one backtest run.
type Config struct {
	Universe  []string  `json:"universe"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Frequency Frequency `json:"frequency"`

	TopN         int     `json:"top_n"`         // positions held after each rebalance
	MinComposite float64 `json:"min_composite"` // rank filter on composite score
	MaxPerSector int     `json:"max_per_sector"` // selection-time diversification, 0 disables

	InitialCapital float64 `json:"initial_capital"`
	CostBps        float64 `json:"cost_bps"` // transaction cost per side, basis points

	// KellySizing scales invested exposure by the half-Kelly fraction
	// estimated from realized trades once enough have closed.
	KellySizing bool `json:"kelly_sizing,omitempty"`

	// Sectors maps symbols to sector names for diversification and the
	// sector concentration cap. Symbols absent from the map are exempt.
	Sectors map[string]string `json:"sectors,omitempty"`

	Risk risk.Config `json:"risk"`
}

// Validate checks the config and fills defaults in place.
func (c *Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe is empty")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || !c.StartDate.Before(c.EndDate) {
		return fmt.Errorf("start date must precede end date")
	}
	switch c.Frequency {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
	case "":
		c.Frequency = FrequencyMonthly
	default:
		return fmt.Errorf("unknown rebalance frequency %q", c.Frequency)
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = 100_000
	}
	if c.CostBps < 0 {
		return fmt.Errorf("cost_bps must be non-negative")
	}
	if c.CostBps == 0 {
		c.CostBps = 10
	}
	if c.Risk == (risk.Config{}) {
		c.Risk = risk.DefaultConfig()
	}
	return nil
}

func (c *Config) costRate() float64 {
	return c.CostBps / 10_000
}

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Position is an open holding. PeakPrice only moves up; it anchors the
// trailing stop.
type Position struct {
	Symbol      string           `json:"symbol"`
	Shares      float64          `json:"shares"`
	EntryPrice  float64          `json:"entry_price"`
	EntryDate   time.Time        `json:"entry_date"`
	EntryScore  float64          `json:"entry_score"`
	QualityTier risk.QualityTier `json:"quality_tier"`
	PeakPrice   float64          `json:"peak_price"`
}

// Trade is one executed order. Value excludes cost; BUYs debit
// value+cost from cash, SELLs credit value-cost.
type Trade struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Side   string    `json:"side"` // "BUY", "SELL"
	Shares float64   `json:"shares"`
	Price  float64   `json:"price"`
	Value  float64   `json:"value"`
	Cost   float64   `json:"cost"`
	Reason string    `json:"reason"` // "rebalance", "stop_loss", "final_liquidation"
}

// ClosedPosition is a completed round trip.
type ClosedPosition struct {
	Symbol     string    `json:"symbol"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Shares     float64   `json:"shares"`
	RealizedPL float64   `json:"realized_pl"`
	ReturnPct  float64   `json:"return_pct"`
	Reason     string    `json:"reason"`
}

// RebalanceEvent summarizes one rebalance date.
type RebalanceEvent struct {
	Date       time.Time `json:"date"`
	Scored     int       `json:"scored"`
	Eligible   int       `json:"eligible"`
	Selected   []string  `json:"selected"`
	CashTarget float64   `json:"cash_target"`
	Turnover   float64   `json:"turnover"`
}

// EquityPoint is one day of the equity curve.
type EquityPoint struct {
	Date     time.Time `json:"date"`
	Equity   float64   `json:"equity"`
	Cash     float64   `json:"cash"`
	Holdings float64   `json:"holdings"`
}

// Metadata identifies how a result was produced.
type Metadata struct {
	EngineVersion string    `json:"engine_version"`
	Provider      string    `json:"provider"`
	Note          string    `json:"note"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Result is the full output of one run.
type Result struct {
	Config      Config           `json:"config"`
	Metadata    Metadata         `json:"metadata"`
	EquityCurve []EquityPoint    `json:"equity_curve"`
	Rebalances  []RebalanceEvent `json:"rebalances"`
	Trades      []Trade          `json:"trades"`
	Closed      []ClosedPosition `json:"closed_positions"`
	RiskEvents  []risk.Event     `json:"risk_events"`
	Metrics     *Metrics         `json:"metrics"`
}

// ============================================================================
// ENGINE
// ============================================================================

// Scorer is the slice of the scoring pipeline the engine needs. The
// AsOf option makes every call point-in-time.
type Scorer interface {
	Score(ctx context.Context, symbol string, opts scoring.ScoreOptions) (*scoring.Result, error)
}

// Engine drives the simulation. The portfolio is single-threaded: the
// event loop is its sole mutator, only scoring fans out.
type Engine struct {
	cfg      Config
	provider marketdata.Provider
	scorer   Scorer
	risk     *risk.Manager

	scoreLimit int
	progress   func(day, total int)

	cash      float64
	positions map[string]*Position
	lastPrice map[string]float64
	prices    map[string]map[string]float64 // symbol -> day key -> close

	equity     []EquityPoint
	rebalances []RebalanceEvent
	trades     []Trade
	closed     []ClosedPosition
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress installs a per-day progress callback, used by the async
// job manager to stream status.
func WithProgress(fn func(day, total int)) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithScoreLimit bounds scoring fan-out per rebalance date.
func WithScoreLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.scoreLimit = n
		}
	}
}

// New builds an engine. The risk manager must be fresh per run: it
// carries drawdown state across days.
func New(cfg Config, provider marketdata.Provider, scorer Scorer, riskMgr *risk.Manager, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if provider == nil || scorer == nil {
		return nil, fmt.Errorf("provider and scorer are required")
	}
	if riskMgr == nil {
		riskMgr = risk.NewManager(cfg.Risk)
	}
	e := &Engine{
		cfg:        cfg,
		provider:   provider,
		scorer:     scorer,
		risk:       riskMgr,
		scoreLimit: 10,
		cash:       cfg.InitialCapital,
		positions:  make(map[string]*Position),
		lastPrice:  make(map[string]float64),
		prices:     make(map[string]map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the simulation and computes final metrics.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log.Info().
		Int("universe", len(e.cfg.Universe)).
		Str("frequency", string(e.cfg.Frequency)).
		Int("top_n", e.cfg.TopN).
		Float64("initial_capital", e.cfg.InitialCapital).
		Time("start", e.cfg.StartDate).
		Time("end", e.cfg.EndDate).
		Msg("Starting backtest")

	calendar, benchmark, err := e.loadCalendar(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.loadPrices(ctx); err != nil {
		return nil, err
	}
	rebalanceDays := rebalanceSet(calendar, e.cfg.Frequency)

	for i, day := range calendar {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.markPositions(day)
		e.checkStops(day)

		if rebalanceDays[dayKey(day)] {
			if err := e.rebalance(ctx, day); err != nil {
				return nil, err
			}
		}

		equity := e.portfolioValue()
		e.risk.ObserveValue(equity, day)
		e.equity = append(e.equity, EquityPoint{
			Date:     day,
			Equity:   equity,
			Cash:     e.cash,
			Holdings: equity - e.cash,
		})

		if e.progress != nil {
			e.progress(i+1, len(calendar))
		}
	}

	e.liquidate(calendar[len(calendar)-1])

	result := &Result{
		Config: e.cfg,
		Metadata: Metadata{
			EngineVersion: EngineVersion,
			Provider:      fmt.Sprintf("%T", e.provider),
			Note:          biasNote,
			CompletedAt:   time.Now().UTC(),
		},
		EquityCurve: e.equity,
		Rebalances:  e.rebalances,
		Trades:      e.trades,
		Closed:      e.closed,
		RiskEvents:  e.risk.Events(),
	}
	result.Metrics = CalculateMetrics(e.cfg.InitialCapital, e.equity, e.closed, benchmark)

	metrics.BacktestRuns.WithLabelValues("completed").Inc()
	metrics.BacktestDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Int("days", len(e.equity)).
		Int("trades", len(e.trades)).
		Float64("final_equity", result.Metrics.FinalEquity).
		Float64("total_return_pct", result.Metrics.TotalReturnPct).
		Dur("elapsed", time.Since(start)).
		Msg("Backtest complete")
	return result, nil
}

// ============================================================================
// CALENDAR AND PRICES
// ============================================================================

// loadCalendar derives the trading-day calendar and the benchmark
// close series from the benchmark's own history.
func (e *Engine) loadCalendar(ctx context.Context) ([]time.Time, []float64, error) {
	bars, err := e.provider.History(ctx, marketdata.BenchmarkSymbol, e.cfg.StartDate, e.cfg.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("loading benchmark calendar: %w", err)
	}
	if len(bars) < 2 {
		return nil, nil, fmt.Errorf("benchmark history too short: %d bars", len(bars))
	}
	calendar := make([]time.Time, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		calendar[i] = bar.Date
		closes[i] = bar.Close
	}
	return calendar, closes, nil
}

// loadPrices preloads daily closes for the whole universe so daily
// marking never calls the provider.
func (e *Engine) loadPrices(ctx context.Context) error {
	for _, symbol := range e.cfg.Universe {
		bars, err := e.provider.History(ctx, symbol, e.cfg.StartDate, e.cfg.EndDate)
		if err != nil {
			return fmt.Errorf("loading history for %s: %w", symbol, err)
		}
		byDay := make(map[string]float64, len(bars))
		for _, bar := range bars {
			byDay[dayKey(bar.Date)] = bar.Close
		}
		e.prices[symbol] = byDay
	}
	return nil
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// rebalanceSet marks the first trading day of each week, month or
// quarter in the calendar.
func rebalanceSet(calendar []time.Time, freq Frequency) map[string]bool {
	set := make(map[string]bool)
	lastPeriod := -1
	for _, day := range calendar {
		var period int
		switch freq {
		case FrequencyWeekly:
			year, week := day.ISOWeek()
			period = year*100 + week
		case FrequencyQuarterly:
			period = day.Year()*10 + (int(day.Month())-1)/3
		default: // monthly
			period = day.Year()*100 + int(day.Month())
		}
		if period != lastPeriod {
			set[dayKey(day)] = true
			lastPeriod = period
		}
	}
	return set
}

// priceOn returns the symbol's close for the day, falling back to the
// last known price when the symbol did not trade.
func (e *Engine) priceOn(symbol string, day time.Time) (float64, bool) {
	if px, ok := e.prices[symbol][dayKey(day)]; ok {
		e.lastPrice[symbol] = px
		return px, true
	}
	px, ok := e.lastPrice[symbol]
	return px, ok
}

// ============================================================================
// DAILY RISK LOOP
// ============================================================================

// markPositions refreshes peak prices from today's closes.
func (e *Engine) markPositions(day time.Time) {
	for _, pos := range e.positions {
		if px, ok := e.priceOn(pos.Symbol, day); ok && px > pos.PeakPrice {
			pos.PeakPrice = px
		}
	}
}

// checkStops runs the tiered trailing stops and closes any position
// whose stop fires, at today's close.
func (e *Engine) checkStops(day time.Time) {
	for _, symbol := range sortedSymbols(e.positions) {
		pos := e.positions[symbol]
		px, ok := e.priceOn(symbol, day)
		if !ok {
			continue
		}
		newPeak, stopped := e.risk.CheckTrailingStop(symbol, pos.QualityTier, pos.PeakPrice, px, day)
		pos.PeakPrice = newPeak
		if stopped {
			e.sell(pos, px, day, "stop_loss")
		}
	}
}

// ============================================================================
// REBALANCING
// ============================================================================

// rebalance scores the universe as of the date, selects the top book
// and trades the portfolio to risk-constrained targets.
func (e *Engine) rebalance(ctx context.Context, day time.Time) error {
	scored, err := e.scoreUniverse(ctx, day)
	if err != nil {
		return err
	}

	eligible := make([]*scoring.Result, 0, len(scored))
	for _, r := range scored {
		if r.Composite >= e.cfg.MinComposite {
			eligible = append(eligible, r)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Composite != eligible[j].Composite {
			return eligible[i].Composite > eligible[j].Composite
		}
		return eligible[i].Symbol < eligible[j].Symbol
	})
	selected := e.selectDiversified(eligible)

	equity := e.portfolioValue()
	cashTarget := e.risk.CashTarget()
	invested := (1 - cashTarget) * e.investedScale()

	targets := make(map[string]float64, len(selected))
	if len(selected) > 0 {
		per := invested / float64(len(selected))
		for _, r := range selected {
			targets[r.Symbol] = per
		}
	}
	vol := risk.AnnualizedVolatility(risk.TrailingReturns(equitySeries(e.equity), 60))
	constrained := e.risk.ApplyConstraints(targets, e.cfg.Sectors, vol, day)

	turnover := e.trade(day, equity, constrained, selected)

	names := make([]string, 0, len(selected))
	for _, r := range selected {
		names = append(names, r.Symbol)
	}
	e.rebalances = append(e.rebalances, RebalanceEvent{
		Date:       day,
		Scored:     len(scored),
		Eligible:   len(eligible),
		Selected:   names,
		CashTarget: cashTarget,
		Turnover:   turnover,
	})
	log.Debug().
		Time("date", day).
		Int("scored", len(scored)).
		Int("selected", len(names)).
		Float64("turnover", turnover).
		Msg("Rebalanced")
	return nil
}

// scoreUniverse scores every universe symbol point-in-time with
// bounded fan-out. Symbols that cannot be scored are skipped.
func (e *Engine) scoreUniverse(ctx context.Context, day time.Time) ([]*scoring.Result, error) {
	results := make([]*scoring.Result, len(e.cfg.Universe))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.scoreLimit)
	for i, symbol := range e.cfg.Universe {
		g.Go(func() error {
			r, err := e.scorer.Score(gctx, symbol, scoring.ScoreOptions{AsOf: day})
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Time("date", day).Msg("Scoring failed, symbol skipped")
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// selectDiversified takes the top-N from the ranked list, skipping
// symbols whose sector is already at the per-sector limit.
func (e *Engine) selectDiversified(ranked []*scoring.Result) []*scoring.Result {
	selected := make([]*scoring.Result, 0, e.cfg.TopN)
	perSector := make(map[string]int)
	for _, r := range ranked {
		if len(selected) >= e.cfg.TopN {
			break
		}
		sector := e.cfg.Sectors[r.Symbol]
		if e.cfg.MaxPerSector > 0 && sector != "" && perSector[sector] >= e.cfg.MaxPerSector {
			continue
		}
		selected = append(selected, r)
		if sector != "" {
			perSector[sector]++
		}
	}
	return selected
}

// trade moves the portfolio to the target weights: exits first, then
// trims, then buys from the freed cash. Returns turnover as traded
// value over equity.
func (e *Engine) trade(day time.Time, equity float64, targets map[string]float64, selected []*scoring.Result) float64 {
	bySymbol := make(map[string]*scoring.Result, len(selected))
	for _, r := range selected {
		bySymbol[r.Symbol] = r
	}

	var traded float64

	// Exits and trims.
	for _, symbol := range sortedSymbols(e.positions) {
		pos := e.positions[symbol]
		px, ok := e.priceOn(symbol, day)
		if !ok {
			continue
		}
		targetValue := targets[symbol] * equity
		currentValue := pos.Shares * px
		if targets[symbol] == 0 {
			traded += currentValue
			e.sell(pos, px, day, "rebalance")
			continue
		}
		if excess := currentValue - targetValue; excess > equity*rebalanceTolerance {
			traded += excess
			e.sellShares(pos, excess/px, px, day, "rebalance")
		}
	}

	// Buys and adds, best score first.
	for _, r := range selected {
		px, ok := e.priceOn(r.Symbol, day)
		if !ok || px <= 0 {
			continue
		}
		targetValue := targets[r.Symbol] * equity
		var currentValue float64
		if pos, held := e.positions[r.Symbol]; held {
			currentValue = pos.Shares * px
		}
		shortfall := targetValue - currentValue
		if shortfall <= equity*rebalanceTolerance {
			continue
		}
		// Never let cost push cash negative.
		if affordable := e.cash / (1 + e.cfg.costRate()); shortfall > affordable {
			shortfall = affordable
		}
		if shortfall <= 0 {
			continue
		}
		traded += shortfall
		e.buy(r, shortfall/px, px, day)
	}

	if equity <= 0 {
		return 0
	}
	return traded / equity
}

// rebalanceTolerance suppresses churn: deltas under half a percent of
// equity are not traded.
const rebalanceTolerance = 0.005

// ============================================================================
// ORDER EXECUTION
// ============================================================================

func (e *Engine) buy(r *scoring.Result, shares, price float64, day time.Time) {
	value := shares * price
	cost := value * e.cfg.costRate()
	e.cash -= value + cost
	// The affordability guard divides by (1 + costRate); the round trip
	// can leave sub-epsilon negative dust. Anything larger is a real bug.
	if e.cash < 0 && e.cash > -1e-6 {
		e.cash = 0
	}
	e.trades = append(e.trades, Trade{
		Date: day, Symbol: r.Symbol, Side: "BUY",
		Shares: shares, Price: price, Value: value, Cost: cost,
		Reason: "rebalance",
	})

	if pos, held := e.positions[r.Symbol]; held {
		totalShares := pos.Shares + shares
		pos.EntryPrice = (pos.EntryPrice*pos.Shares + price*shares) / totalShares
		pos.Shares = totalShares
		if price > pos.PeakPrice {
			pos.PeakPrice = price
		}
		return
	}

	quality := 50.0
	if q := r.PerAgent.Result(agents.NameQuality); q != nil && !q.Failed {
		quality = q.Score
	}
	e.positions[r.Symbol] = &Position{
		Symbol:      r.Symbol,
		Shares:      shares,
		EntryPrice:  price,
		EntryDate:   day,
		EntryScore:  r.Composite,
		QualityTier: risk.TierFor(quality),
		PeakPrice:   price,
	}
}

// sell closes the whole position.
func (e *Engine) sell(pos *Position, price float64, day time.Time, reason string) {
	e.sellShares(pos, pos.Shares, price, day, reason)
}

// sellShares sells part of a position, closing it when the remainder
// is negligible.
func (e *Engine) sellShares(pos *Position, shares, price float64, day time.Time, reason string) {
	if shares > pos.Shares {
		shares = pos.Shares
	}
	value := shares * price
	cost := value * e.cfg.costRate()
	e.cash += value - cost
	e.trades = append(e.trades, Trade{
		Date: day, Symbol: pos.Symbol, Side: "SELL",
		Shares: shares, Price: price, Value: value, Cost: cost,
		Reason: reason,
	})

	pl := (price - pos.EntryPrice) * shares
	var returnPct float64
	if pos.EntryPrice > 0 {
		returnPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	e.closed = append(e.closed, ClosedPosition{
		Symbol:     pos.Symbol,
		EntryDate:  pos.EntryDate,
		ExitDate:   day,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Shares:     shares,
		RealizedPL: pl,
		ReturnPct:  returnPct,
		Reason:     reason,
	})

	pos.Shares -= shares
	if pos.Shares*price < 1e-6 {
		delete(e.positions, pos.Symbol)
	}
}

// liquidate closes the whole book at the final day's closes so trade
// statistics cover every position.
func (e *Engine) liquidate(day time.Time) {
	for _, symbol := range sortedSymbols(e.positions) {
		pos := e.positions[symbol]
		if px, ok := e.priceOn(symbol, day); ok {
			e.sell(pos, px, day, "final_liquidation")
		}
	}
}

// ============================================================================
// PORTFOLIO ACCOUNTING
// ============================================================================

// portfolioValue is cash plus every position at its latest price.
func (e *Engine) portfolioValue() float64 {
	value := e.cash
	for symbol, pos := range e.positions {
		if px, ok := e.lastPrice[symbol]; ok {
			value += pos.Shares * px
		} else {
			value += pos.Shares * pos.EntryPrice
		}
	}
	return value
}

// investedScale applies optional half-Kelly exposure scaling once
// enough trades have closed to estimate the edge.
func (e *Engine) investedScale() float64 {
	if !e.cfg.KellySizing {
		return 1
	}
	f := HalfKellyFromTrades(e.closed)
	if f <= 0 {
		return 1
	}
	return math.Min(1, math.Max(minKellyExposure, f*kellyExposureScale))
}

func sortedSymbols(positions map[string]*Position) []string {
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func equitySeries(points []EquityPoint) []float64 {
	series := make([]float64, len(points))
	for i, p := range points {
		series[i] = p.Equity
	}
	return series
}
