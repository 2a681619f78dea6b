package marketdata

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(dates ...string) []Bar {
	bars := make([]Bar, len(dates))
	for i, d := range dates {
		ts, err := time.Parse("2006-01-02", d)
		if err != nil {
			panic(err)
		}
		bars[i] = Bar{Date: ts, Close: 100 + float64(i)}
	}
	return bars
}

// TestTruncateBars tests point-in-time truncation
func TestTruncateBars(t *testing.T) {
	bars := makeBars("2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")

	t.Run("cuts after asOf", func(t *testing.T) {
		asOf, _ := time.Parse("2006-01-02", "2024-01-03")
		got := TruncateBars(bars, asOf)
		require.Len(t, got, 2)
		assert.Equal(t, bars[1].Date, got[1].Date)
	})

	t.Run("zero asOf keeps everything", func(t *testing.T) {
		got := TruncateBars(bars, time.Time{})
		assert.Len(t, got, 4)
	})

	t.Run("asOf before history is empty", func(t *testing.T) {
		asOf, _ := time.Parse("2006-01-02", "2023-12-29")
		got := TruncateBars(bars, asOf)
		assert.Empty(t, got)
	})

	t.Run("asOf on a bar date includes it", func(t *testing.T) {
		asOf, _ := time.Parse("2006-01-02", "2024-01-04")
		got := TruncateBars(bars, asOf)
		require.Len(t, got, 3)
		assert.Equal(t, bars[2].Date, got[2].Date)
	})
}

// TestDailyReturns tests simple return computation
func TestDailyReturns(t *testing.T) {
	bars := []Bar{
		{Close: 100},
		{Close: 110},
		{Close: 99},
	}

	returns := DailyReturns(bars)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestDailyReturnsSkipsZeroClose(t *testing.T) {
	bars := []Bar{
		{Close: 100},
		{Close: 0},
		{Close: 50},
	}

	returns := DailyReturns(bars)
	for _, r := range returns {
		assert.False(t, math.IsInf(r, 0))
		assert.False(t, math.IsNaN(r))
	}
}

// TestIndicatorSetScalar tests scalar lookup with series fallback
func TestIndicatorSetScalar(t *testing.T) {
	set := NewIndicatorSet()
	set.SetScalar(IndRSI, 61.5)
	set.SetSeries(IndSMA50, []float64{100, 101, 102})

	t.Run("direct scalar", func(t *testing.T) {
		v, ok := set.Scalar(IndRSI)
		require.True(t, ok)
		assert.Equal(t, 61.5, v)
	})

	t.Run("falls back to last series value", func(t *testing.T) {
		v, ok := set.Scalar(IndSMA50)
		require.True(t, ok)
		assert.Equal(t, 102.0, v)
	})

	t.Run("missing name", func(t *testing.T) {
		_, ok := set.Scalar(IndOBV)
		assert.False(t, ok)
	})

	t.Run("non-finite scalar is dropped", func(t *testing.T) {
		set.SetScalar(IndADX, math.NaN())
		_, ok := set.Scalar(IndADX)
		assert.False(t, ok)
	})
}

func TestIndicatorSetTail(t *testing.T) {
	set := NewIndicatorSet()
	set.SetSeries(IndOBV, []float64{1, 2, 3, 4, 5})

	assert.Equal(t, []float64{4, 5}, set.Tail(IndOBV, 2))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, set.Tail(IndOBV, 10))
	assert.Nil(t, set.Tail(IndRSI, 3))
}

// TestStatementTable tests row access ordering
func TestStatementTable(t *testing.T) {
	q1, _ := time.Parse("2006-01-02", "2024-03-31")
	q4, _ := time.Parse("2006-01-02", "2023-12-31")

	table := &StatementTable{
		Periods: []time.Time{q1, q4},
		Rows: map[string][]float64{
			RowTotalRevenue: {500, 480},
		},
	}

	latest, ok := table.Latest(RowTotalRevenue)
	require.True(t, ok)
	assert.Equal(t, 500.0, latest)

	_, ok = table.Latest(RowNetIncome)
	assert.False(t, ok)
}

func TestBundleLastClose(t *testing.T) {
	bundle := &Bundle{History: makeBars("2024-01-02", "2024-01-03")}

	last, ok := bundle.LastClose()
	require.True(t, ok)
	assert.Equal(t, 101.0, last)

	empty := &Bundle{}
	_, ok = empty.LastClose()
	assert.False(t, ok)
}
