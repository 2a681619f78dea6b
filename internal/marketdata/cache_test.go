package marketdata

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps a FixtureProvider and counts upstream calls.
type countingProvider struct {
	*FixtureProvider
	calls atomic.Int64
}

func (p *countingProvider) Comprehensive(ctx context.Context, symbol string, asOf time.Time) (*Bundle, error) {
	p.calls.Add(1)
	return p.FixtureProvider.Comprehensive(ctx, symbol, asOf)
}

func setupCachedProvider(t *testing.T) (*CachedProvider, *countingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	fixtures := NewFixtureProvider()
	fixtures.Register("AAPL", &Fixture{
		History: makeBars("2024-01-02", "2024-01-03", "2024-01-04"),
		Info:    &Info{Name: "Apple Inc."},
	})

	counting := &countingProvider{FixtureProvider: fixtures}
	cached := NewCachedProvider(counting, client, time.Minute)
	return cached, counting, mr
}

func waitForCacheWrite(t *testing.T, mr *miniredis.Miniredis) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(mr.Keys()) > 0
	}, time.Second, 5*time.Millisecond, "async cache write never landed")
}

// TestCachedProviderReadThrough tests miss-then-hit behavior
func TestCachedProviderReadThrough(t *testing.T) {
	cached, counting, mr := setupCachedProvider(t)
	ctx := context.Background()

	first, err := cached.Comprehensive(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counting.calls.Load())

	waitForCacheWrite(t, mr)

	second, err := cached.Comprehensive(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counting.calls.Load(), "second fetch should be served from cache")
	assert.Equal(t, len(first.History), len(second.History))
	assert.Equal(t, first.Info.Name, second.Info.Name)
}

// TestCachedProviderCorruptEntry tests fallthrough on bad cached JSON
func TestCachedProviderCorruptEntry(t *testing.T) {
	cached, counting, mr := setupCachedProvider(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("marketdata:bundle:AAPL:latest", "{not json"))

	bundle, err := cached.Comprehensive(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counting.calls.Load(), "corrupt entry must fall through to the provider")
	assert.NotNil(t, bundle.Info)
}

// TestCachedProviderPointInTimeKeys tests that asOf views get distinct keys
func TestCachedProviderPointInTimeKeys(t *testing.T) {
	cached, _, mr := setupCachedProvider(t)
	ctx := context.Background()

	asOf, _ := time.Parse("2006-01-02", "2024-01-03")
	_, err := cached.Comprehensive(ctx, "AAPL", asOf)
	require.NoError(t, err)

	waitForCacheWrite(t, mr)
	assert.True(t, mr.Exists("marketdata:bundle:AAPL:2024-01-03"))
	assert.False(t, mr.Exists("marketdata:bundle:AAPL:latest"))
}

// TestCachedProviderHistory tests the history cache path
func TestCachedProviderHistory(t *testing.T) {
	cached, _, mr := setupCachedProvider(t)
	ctx := context.Background()

	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-03")

	bars, err := cached.History(ctx, "AAPL", start, end)
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	waitForCacheWrite(t, mr)

	again, err := cached.History(ctx, "AAPL", start, end)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

// TestCachedProviderInvalidate tests per-symbol invalidation
func TestCachedProviderInvalidate(t *testing.T) {
	cached, _, mr := setupCachedProvider(t)
	ctx := context.Background()

	_, err := cached.Comprehensive(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	waitForCacheWrite(t, mr)

	require.NoError(t, cached.InvalidateSymbol(ctx, "AAPL"))
	assert.Empty(t, mr.Keys())
}

// TestCachedProviderPropagatesNotFound tests that sentinel errors pass through
func TestCachedProviderPropagatesNotFound(t *testing.T) {
	cached, _, _ := setupCachedProvider(t)

	_, err := cached.Comprehensive(context.Background(), "ZZZZ", time.Time{})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}
