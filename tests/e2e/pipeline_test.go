// Package e2e exercises the full stack end to end: fixture data through
// scoring, the HTTP surface, and an asynchronous backtest run with the
// real engine.
package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/api"
	"github.com/ajitpratap0/stockfunk/internal/backtest"
	"github.com/ajitpratap0/stockfunk/internal/cache"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/executor"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

func ptr(v float64) *float64 { return &v }

type stack struct {
	server *api.Server
	jobs   *backtest.Manager
}

// newStack wires the production components over deterministic fixtures,
// with the real backtest engine behind the job manager.
func newStack(t *testing.T) *stack {
	t.Helper()

	fp := marketdata.NewFixtureProvider()
	fp.BuildIndicators = indicators.BuildSet
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	symbols := []struct {
		name   string
		sector string
		drift  float64
		seed   int64
	}{
		{"AAPL", "Technology", 0.0010, 41},
		{"MSFT", "Technology", 0.0008, 42},
		{"XOM", "Energy", 0.0004, 43},
	}
	for _, s := range symbols {
		bars := marketdata.GenerateBars(start, 520, 120, s.drift, 0.012, s.seed)
		price := bars[len(bars)-1].Close
		fp.Register(s.name, &marketdata.Fixture{
			History: bars,
			Info: &marketdata.Info{
				Name:            s.name,
				Sector:          s.sector,
				MarketCap:       ptr(8e11),
				ReturnOnEquity:  ptr(0.20),
				ProfitMargins:   ptr(0.15),
				GrossMargins:    ptr(0.42),
				CurrentPrice:    ptr(price),
				TargetMeanPrice: ptr(price * 1.10),
				RevenueGrowth:   ptr(0.07),
				CurrentRatio:    ptr(1.4),
				FreeCashflow:    ptr(4e10),
				AnalystBuy:      ptr(18),
				AnalystHold:     ptr(9),
				AnalystSell:     ptr(2),
			},
		})
	}
	fp.Register(marketdata.BenchmarkSymbol, &marketdata.Fixture{
		History: marketdata.GenerateBars(start, 520, 400, 0.0004, 0.008, 50),
	})

	exec := executor.New(nil, executor.Config{Timeout: 5 * time.Second, BackoffMin: time.Millisecond})
	regimes := regime.NewService(fp, regime.DefaultConfig())
	scorer, err := scoring.New(fp, exec, scoring.DefaultConfig(),
		scoring.WithCache(cache.New[*scoring.Result](100, time.Minute)),
		scoring.WithRegimeService(regimes),
	)
	require.NoError(t, err)

	store, err := backtest.NewFileStore(t.TempDir(), 10)
	require.NoError(t, err)
	jobs := backtest.NewManager(store, backtest.EngineRunner(fp, scorer))
	t.Cleanup(jobs.Wait)

	server := api.NewServer(config.APIConfig{RatePerSecond: 1000, RateBurst: 1000}, scorer, regimes, jobs)
	return &stack{server: server, jobs: jobs}
}

func (s *stack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.server.Router().ServeHTTP(w, req)
	return w
}

func TestScoreThenCacheHit(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodPost, "/analyze", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusOK, w.Code)
	var first struct {
		Result scoring.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.False(t, first.Result.CacheHit)
	assert.NotEmpty(t, first.Result.Recommendation)
	assert.InDelta(t, 50, first.Result.Composite, 50, "composite in range")

	w = s.do(t, http.MethodPost, "/analyze", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusOK, w.Code)
	var second struct {
		Result scoring.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.True(t, second.Result.CacheHit)
	assert.Equal(t, first.Result.Composite, second.Result.Composite)
}

func TestRegimeAndHealthSurfaces(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/market/regime", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap regime.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.Label)
	require.NoError(t, snap.Weights.Validate())

	w = s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBacktestThroughJobManager(t *testing.T) {
	s := newStack(t)

	cfg := btengine.Config{
		Universe:       []string{"AAPL", "MSFT", "XOM"},
		StartDate:      time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC),
		Frequency:      btengine.FrequencyMonthly,
		TopN:           2,
		MinComposite:   20,
		InitialCapital: 100_000,
		Sectors: map[string]string{
			"AAPL": "Technology", "MSFT": "Technology", "XOM": "Energy",
		},
	}
	w := s.do(t, http.MethodPost, "/api/v1/backtests", map[string]any{
		"name":   "e2e run",
		"config": cfg,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var created backtest.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	s.jobs.Wait()

	w = s.do(t, http.MethodGet, "/api/v1/backtests/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec backtest.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.Equal(t, backtest.JobStatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	require.NotNil(t, rec.Result.Metrics)

	m := rec.Result.Metrics
	assert.Equal(t, 100_000.0, m.InitialCapital)
	assert.Greater(t, m.FinalEquity, 0.0)
	for _, pt := range rec.Result.EquityCurve {
		assert.GreaterOrEqual(t, pt.Cash, 0.0, "cash never negative")
		assert.InDelta(t, pt.Equity, pt.Cash+pt.Holdings, 1e-6)
	}
}
