// Package marketdata defines the per-symbol data contract consumed by the
// scoring core: daily bars, the pre-computed indicator bundle, the nullable
// fundamentals snapshot, and financial statement tables, all keyed by symbol
// and as-of date. Provider implementations live alongside the types.
package marketdata

import (
	"time"

	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// Bar is a single daily OHLCV observation.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Canonical indicator names. Agents address the indicator bundle only
// through these keys.
const (
	IndRSI          = "rsi_14"
	IndMACD         = "macd"
	IndMACDSignal   = "macd_signal"
	IndMACDHist     = "macd_hist"
	IndADX          = "adx_14"
	IndPlusDI       = "plus_di"
	IndMinusDI      = "minus_di"
	IndStochK       = "stoch_k"
	IndStochD       = "stoch_d"
	IndWilliamsR    = "williams_r"
	IndSMA50        = "sma_50"
	IndSMA200       = "sma_200"
	IndBBUpper      = "bb_upper"
	IndBBMiddle     = "bb_middle"
	IndBBLower      = "bb_lower"
	IndOBV          = "obv"
	IndAD           = "ad"
	IndMFI          = "mfi_14"
	IndCMF          = "cmf_20"
	IndVWAP         = "vwap"
	IndVolumeZScore = "volume_zscore"
	IndATR          = "atr_14"
	IndNATR         = "natr_14"
)

// IndicatorSet maps canonical indicator names to either a series aligned
// with the bar history or a single scalar. Non-finite values are dropped by
// the builder; absence means "not computable from the supplied history".
type IndicatorSet struct {
	Series  map[string][]float64 `json:"series,omitempty"`
	Scalars map[string]float64   `json:"scalars,omitempty"`
}

// NewIndicatorSet returns an empty, writable set.
func NewIndicatorSet() *IndicatorSet {
	return &IndicatorSet{
		Series:  make(map[string][]float64),
		Scalars: make(map[string]float64),
	}
}

// Scalar returns the named value: a scalar entry if present, otherwise the
// last element of the named series. The bool reports usability (present and
// finite).
func (s *IndicatorSet) Scalar(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	if v, ok := s.Scalars[name]; ok {
		return v, validation.IsFinite(v)
	}
	if seq, ok := s.Series[name]; ok && len(seq) > 0 {
		v := seq[len(seq)-1]
		return v, validation.IsFinite(v)
	}
	return 0, false
}

// Sequence returns the named series, nil when absent or empty.
func (s *IndicatorSet) Sequence(name string) []float64 {
	if s == nil {
		return nil
	}
	return s.Series[name]
}

// Tail returns up to the last n values of the named series.
func (s *IndicatorSet) Tail(name string, n int) []float64 {
	seq := s.Sequence(name)
	if len(seq) == 0 {
		return nil
	}
	if len(seq) <= n {
		return seq
	}
	return seq[len(seq)-n:]
}

// SetScalar stores a scalar, silently dropping non-finite values.
func (s *IndicatorSet) SetScalar(name string, v float64) {
	if validation.IsFinite(v) {
		s.Scalars[name] = v
	}
}

// SetSeries stores a series as-is. Builders are responsible for keeping
// values finite.
func (s *IndicatorSet) SetSeries(name string, seq []float64) {
	if len(seq) > 0 {
		s.Series[name] = seq
	}
}

// Info is the fundamentals snapshot for a symbol. Every numeric field is
// nullable because vendors routinely have gaps; agents treat nil as a
// coverage miss, never as zero.
type Info struct {
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
	Exchange string `json:"exchange,omitempty"`

	MarketCap    *float64 `json:"marketCap,omitempty"`
	CurrentPrice *float64 `json:"currentPrice,omitempty"`

	ProfitMargins    *float64 `json:"profitMargins,omitempty"`
	GrossMargins     *float64 `json:"grossMargins,omitempty"`
	OperatingMargins *float64 `json:"operatingMargins,omitempty"`
	ReturnOnEquity   *float64 `json:"returnOnEquity,omitempty"`
	ReturnOnAssets   *float64 `json:"returnOnAssets,omitempty"`

	TrailingPE  *float64 `json:"trailingPE,omitempty"`
	ForwardPE   *float64 `json:"forwardPE,omitempty"`
	PriceToBook *float64 `json:"priceToBook,omitempty"`
	PEGRatio    *float64 `json:"pegRatio,omitempty"`

	DebtToEquity *float64 `json:"debtToEquity,omitempty"`
	CurrentRatio *float64 `json:"currentRatio,omitempty"`
	QuickRatio   *float64 `json:"quickRatio,omitempty"`

	FreeCashflow      *float64 `json:"freeCashflow,omitempty"`
	OperatingCashflow *float64 `json:"operatingCashflow,omitempty"`

	RevenueGrowth  *float64 `json:"revenueGrowth,omitempty"`
	EarningsGrowth *float64 `json:"earningsGrowth,omitempty"`

	TargetMeanPrice    *float64 `json:"targetMeanPrice,omitempty"`
	RecommendationMean *float64 `json:"recommendationMean,omitempty"`
	AnalystStrongBuy   *float64 `json:"analystStrongBuy,omitempty"`
	AnalystBuy         *float64 `json:"analystBuy,omitempty"`
	AnalystHold        *float64 `json:"analystHold,omitempty"`
	AnalystSell        *float64 `json:"analystSell,omitempty"`
	AnalystStrongSell  *float64 `json:"analystStrongSell,omitempty"`

	SharesOutstanding       *float64 `json:"sharesOutstanding,omitempty"`
	HeldPercentInstitutions *float64 `json:"heldPercentInstitutions,omitempty"`

	// NewsSentiment is an optional [-1, 1] scalar pre-computed by the provider
	// layer (LLM-backed when configured). Agents read it; they never fetch it.
	NewsSentiment *float64 `json:"newsSentiment,omitempty"`
}

// Canonical statement line-item row keys.
const (
	RowTotalRevenue    = "total_revenue"
	RowNetIncome       = "net_income"
	RowGrossProfit     = "gross_profit"
	RowOperatingIncome = "operating_income"
	RowTotalAssets     = "total_assets"
	RowTotalLiabilities = "total_liabilities"
	RowTotalEquity     = "total_equity"
	RowOperatingCashflow = "operating_cashflow"
	RowCapitalExpenditure = "capital_expenditure"
	RowStockRepurchase = "repurchase_of_stock"
)

// StatementTable is a financial statement: rows are line items, columns are
// reporting periods ordered most recent first. Rows with unusable vendor
// data are omitted entirely; present cells are always finite.
type StatementTable struct {
	Periods []time.Time          `json:"periods"`
	Rows    map[string][]float64 `json:"rows"`
}

// Row returns the named line item across periods.
func (t *StatementTable) Row(name string) ([]float64, bool) {
	if t == nil {
		return nil, false
	}
	row, ok := t.Rows[name]
	return row, ok && len(row) > 0
}

// Latest returns the most recent period's value for the named line item.
func (t *StatementTable) Latest(name string) (float64, bool) {
	row, ok := t.Row(name)
	if !ok {
		return 0, false
	}
	return row[0], true
}

// Bundle is everything an agent may read for one (symbol, as-of date).
// Bundles are owned by the scoring call that requested them and are treated
// as immutable once handed to the executor.
type Bundle struct {
	Symbol string    `json:"symbol"`
	AsOf   time.Time `json:"asOf"`

	History    []Bar         `json:"history"`
	Indicators *IndicatorSet `json:"indicators"`
	Info       *Info         `json:"info"`

	Financials          *StatementTable `json:"financials,omitempty"`
	QuarterlyFinancials *StatementTable `json:"quarterlyFinancials,omitempty"`
	BalanceSheet        *StatementTable `json:"balanceSheet,omitempty"`
	Cashflow            *StatementTable `json:"cashflow,omitempty"`

	// Benchmark carries the benchmark series over the same window, used for
	// relative-strength scoring. Optional.
	Benchmark []Bar `json:"benchmark,omitempty"`
}

// Closes extracts the close series from the bar history.
func (b *Bundle) Closes() []float64 {
	closes := make([]float64, len(b.History))
	for i, bar := range b.History {
		closes[i] = bar.Close
	}
	return closes
}

// LastClose returns the most recent close.
func (b *Bundle) LastClose() (float64, bool) {
	if len(b.History) == 0 {
		return 0, false
	}
	return b.History[len(b.History)-1].Close, true
}

// Closes extracts close prices from a bar slice.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}

// DailyReturns computes close-to-close simple returns. The result has
// len(bars)-1 entries; fewer than two bars yield nil.
func DailyReturns(bars []Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	return returns
}
