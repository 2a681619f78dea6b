package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFixtureProviderPointInTime tests asOf truncation and benchmark attach
func TestFixtureProviderPointInTime(t *testing.T) {
	provider := NewFixtureProvider()
	provider.Register("AAPL", &Fixture{
		History: makeBars("2024-01-02", "2024-01-03", "2024-01-04"),
	})
	provider.Register(BenchmarkSymbol, &Fixture{
		History: makeBars("2024-01-02", "2024-01-03", "2024-01-04"),
	})

	asOf, _ := time.Parse("2006-01-02", "2024-01-03")
	bundle, err := provider.Comprehensive(context.Background(), "AAPL", asOf)
	require.NoError(t, err)

	assert.Len(t, bundle.History, 2)
	assert.Len(t, bundle.Benchmark, 2)
	assert.Equal(t, "AAPL", bundle.Symbol)
}

func TestFixtureProviderUnknownSymbol(t *testing.T) {
	provider := NewFixtureProvider()

	_, err := provider.Comprehensive(context.Background(), "ZZZZ", time.Time{})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

// TestFixtureProviderBuildsIndicators tests builder injection
func TestFixtureProviderBuildsIndicators(t *testing.T) {
	provider := NewFixtureProvider()
	provider.BuildIndicators = func(bars []Bar) *IndicatorSet {
		set := NewIndicatorSet()
		set.SetScalar(IndRSI, float64(len(bars)))
		return set
	}
	provider.Register("AAPL", &Fixture{
		History: makeBars("2024-01-02", "2024-01-03", "2024-01-04"),
	})

	asOf, _ := time.Parse("2006-01-02", "2024-01-03")
	bundle, err := provider.Comprehensive(context.Background(), "AAPL", asOf)
	require.NoError(t, err)
	require.NotNil(t, bundle.Indicators)

	// The builder must see only the truncated window.
	rsi, ok := bundle.Indicators.Scalar(IndRSI)
	require.True(t, ok)
	assert.Equal(t, 2.0, rsi)
}

func TestFixtureProviderEmptyHistoryServed(t *testing.T) {
	provider := NewFixtureProvider()
	provider.Register("SHELL", &Fixture{})

	bundle, err := provider.Comprehensive(context.Background(), "SHELL", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, bundle.History)
	assert.Nil(t, bundle.Indicators)
}

// TestGenerateBars tests determinism and calendar shape
func TestGenerateBars(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2024-01-01")

	a := GenerateBars(start, 30, 100, 0.001, 0.02, 42)
	b := GenerateBars(start, 30, 100, 0.001, 0.02, 42)
	c := GenerateBars(start, 30, 100, 0.001, 0.02, 7)

	require.Len(t, a, 30)
	assert.Equal(t, a, b, "same seed must reproduce the series")
	assert.NotEqual(t, a, c, "different seeds must diverge")

	for _, bar := range a {
		assert.NotEqual(t, time.Saturday, bar.Date.Weekday())
		assert.NotEqual(t, time.Sunday, bar.Date.Weekday())
		assert.GreaterOrEqual(t, bar.High, bar.Close)
		assert.LessOrEqual(t, bar.Low, bar.Close)
		assert.Positive(t, bar.Volume)
	}
}
