package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/executor"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

func ptr(v float64) *float64 { return &v }

// newTestProvider registers one rich symbol plus the benchmark.
func newTestProvider(t *testing.T) *marketdata.FixtureProvider {
	t.Helper()
	fp := marketdata.NewFixtureProvider()
	fp.BuildIndicators = indicators.BuildSet

	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := marketdata.GenerateBars(start, 520, 150, 0.0008, 0.012, 11)
	price := bars[len(bars)-1].Close
	fp.Register("AAPL", &marketdata.Fixture{
		History: bars,
		Info: &marketdata.Info{
			Name:            "Apple Inc.",
			Sector:          "Technology",
			MarketCap:       ptr(2.8e12),
			ReturnOnEquity:  ptr(0.25),
			ProfitMargins:   ptr(0.24),
			GrossMargins:    ptr(0.43),
			CurrentPrice:    ptr(price),
			TargetMeanPrice: ptr(price * 1.12),
			RevenueGrowth:   ptr(0.05),
			CurrentRatio:    ptr(1.1),
			FreeCashflow:    ptr(9e10),
			AnalystBuy:      ptr(24),
			AnalystHold:     ptr(8),
			AnalystSell:     ptr(2),
		},
	})
	fp.Register(marketdata.BenchmarkSymbol, &marketdata.Fixture{
		History: marketdata.GenerateBars(start, 520, 400, 0.0004, 0.008, 30),
	})
	// History only: every agent slot fails pre-validation.
	fp.Register("HUSK", &marketdata.Fixture{
		History: marketdata.GenerateBars(start, 520, 40, 0, 0.01, 13),
	})
	return fp
}

// newTestServer builds a full server over fixtures with an instant
// stub backtest runner.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	provider := newTestProvider(t)

	exec := executor.New(nil, executor.Config{Timeout: 5 * time.Second, BackoffMin: time.Millisecond})
	scorer, err := scoring.New(provider, exec, scoring.DefaultConfig())
	require.NoError(t, err)

	regimes := regime.NewService(provider, regime.DefaultConfig())

	store, err := backtest.NewFileStore(t.TempDir(), 10)
	require.NoError(t, err)
	jobs := backtest.NewManager(store, func(ctx context.Context, cfg btengine.Config, progress func(day, total int)) (*btengine.Result, error) {
		progress(1, 2)
		progress(2, 2)
		return &btengine.Result{Metrics: &btengine.Metrics{TotalReturnPct: 4.2}}, nil
	})
	t.Cleanup(jobs.Wait)

	return NewServer(config.APIConfig{
		Host:          "127.0.0.1",
		Port:          0,
		RatePerSecond: 1000,
		RateBurst:     1000,
	}, scorer, regimes, jobs)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRootBanner(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "stockfunk", body["service"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-from-client")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-from-client", w.Header().Get("X-Request-ID"))
}

func TestAnalyzePost(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/analyze", map[string]string{"symbol": "aapl"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	result := body["result"].(map[string]any)
	assert.Equal(t, "AAPL", result["symbol"])
	assert.Contains(t, result, "composite")
	assert.Contains(t, result, "recommendation")

	meta := body["execution_meta"].(map[string]any)
	assert.NotEmpty(t, meta["request_id"])
}

func TestAnalyzeGetForm(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/analyze/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyzeUnknownSymbolIs404(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/analyze", map[string]string{"symbol": "ZZZZ"})
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["request_id"])
}

func TestAnalyzeDegradedScoringIs503(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/analyze", map[string]string{"symbol": "HUSK"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "degraded")
	assert.NotEmpty(t, body["request_id"])

	// Still 503 on retry: the degraded verdict is never served from cache.
	w = do(t, s, http.MethodPost, "/analyze", map[string]string{"symbol": "HUSK"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnalyzeRejectsBadSymbol(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/analyze", map[string]string{"symbol": "not a ticker!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchPartialSuccess(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodPost, "/analyze/batch", map[string][]string{
		"symbols": {"AAPL", "ZZZZ", "aapl"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	results := body["results"].([]any)
	assert.Len(t, results, 2, "duplicate collapsed")
	assert.Equal(t, float64(1), body["scored"])
	assert.Equal(t, float64(1), body["failed"])
	warnings := body["warnings"].([]any)
	assert.NotEmpty(t, warnings)
}

func TestBatchLimits(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/analyze/batch", map[string][]string{"symbols": {}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	many := make([]string, 51)
	for i := range many {
		many[i] = "AAPL"
	}
	w = do(t, s, http.MethodPost, "/analyze/batch", map[string][]string{"symbols": many})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegimeEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/market/regime", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.NotEmpty(t, body["label"])
	assert.Contains(t, body, "weights")
	assert.Contains(t, body, "cache_hit")
}

func TestHealthHealthy(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	agents := body["agents"].(map[string]any)
	assert.Len(t, agents, 5)
}

func TestMetricsExposition(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockfunk_")
}

func TestRateLimitReturns429(t *testing.T) {
	provider := newTestProvider(t)
	exec := executor.New(nil, executor.Config{Timeout: 5 * time.Second, BackoffMin: time.Millisecond})
	scorer, err := scoring.New(provider, exec, scoring.DefaultConfig())
	require.NoError(t, err)
	regimes := regime.NewService(provider, regime.DefaultConfig())

	s := NewServer(config.APIConfig{RatePerSecond: 0.001, RateBurst: 1}, scorer, regimes, nil)

	first := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, decode(t, second)["request_id"])
}

func TestBacktestLifecycle(t *testing.T) {
	s := newTestServer(t)

	cfg := btengine.Config{
		Universe:       []string{"AAPL"},
		StartDate:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 100_000,
	}
	w := do(t, s, http.MethodPost, "/api/v1/backtests", map[string]any{
		"name":   "api smoke",
		"config": cfg,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	created := decode(t, w)
	id := created["id"].(string)
	require.NotEmpty(t, id)

	s.jobs.Wait()

	w = do(t, s, http.MethodGet, "/api/v1/backtests/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	record := decode(t, w)
	assert.Equal(t, "completed", record["status"])

	w = do(t, s, http.MethodGet, "/api/v1/backtests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	runs := decode(t, w)["runs"].([]any)
	assert.Len(t, runs, 1)

	w = do(t, s, http.MethodDelete, "/api/v1/backtests/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/backtests/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBacktestValidation(t *testing.T) {
	s := newTestServer(t)

	// Empty universe fails engine validation.
	w := do(t, s, http.MethodPost, "/api/v1/backtests", map[string]any{
		"config": btengine.Config{InitialCapital: 1000},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/backtests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodDelete, "/api/v1/backtests/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSConfig(t *testing.T) {
	wildcard := corsConfig([]string{"*"})
	assert.True(t, wildcard.AllowAllOrigins)
	assert.False(t, wildcard.AllowCredentials)

	scoped := corsConfig([]string{"https://app.example.com"})
	assert.False(t, scoped.AllowAllOrigins)
	assert.True(t, scoped.AllowCredentials)
	assert.Equal(t, []string{"https://app.example.com"}, scoped.AllowOrigins)
}

func TestErrorBodyHasNoInternals(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid request body", body["error"])
}
