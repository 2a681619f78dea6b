package marketdata

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by providers. Callers map these to API status
// codes; everything else is treated as an internal fault.
var (
	// ErrSymbolNotFound means the vendor does not know the ticker.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnavailable means the vendor could not be reached or refused the
	// request; the symbol may still exist.
	ErrUnavailable = errors.New("market data unavailable")
)

// Provider supplies per-symbol market data. Implementations must be safe
// for concurrent use and apply their own vendor throttling; callers only
// bound fan-out.
//
// Point-in-time discipline: when asOf is non-zero, no observation strictly
// after asOf may appear anywhere in the returned bundle.
type Provider interface {
	// Comprehensive returns the full data bundle for a symbol. A zero asOf
	// means "latest". Missing sections come back nil, not as errors.
	Comprehensive(ctx context.Context, symbol string, asOf time.Time) (*Bundle, error)

	// History returns daily OHLCV bars over [start, end].
	History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// BenchmarkSymbol is the default benchmark series used for regime detection
// and relative strength.
const BenchmarkSymbol = "SPY"

// TruncateBars returns the prefix of bars dated at or before asOf. A zero
// asOf returns bars unchanged.
func TruncateBars(bars []Bar, asOf time.Time) []Bar {
	if asOf.IsZero() {
		return bars
	}
	cut := len(bars)
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(asOf) {
			break
		}
		cut = i
	}
	return bars[:cut]
}
