package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// maxBatchSymbols bounds one batch request.
const maxBatchSymbols = 50

type analyzeRequest struct {
	Symbol string `json:"symbol"`
	Force  bool   `json:"force,omitempty"`
}

type batchRequest struct {
	Symbols []string `json:"symbols"`
}

// executionMeta describes how the request was served.
type executionMeta struct {
	DurationMs int64  `json:"duration_ms"`
	CacheHit   bool   `json:"cache_hit"`
	RequestID  string `json:"request_id"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "stockfunk",
		"version": config.Version,
		"endpoints": []string{
			"POST /analyze", "GET /analyze/:symbol", "POST /analyze/batch",
			"GET /market/regime", "GET /health", "GET /metrics",
			"POST /api/v1/backtests", "GET /api/v1/backtests",
		},
	})
}

// handleHealth smoke-runs every agent. Four or five healthy agents is
// healthy, exactly three is degraded (still 200), fewer is unhealthy
// and the endpoint answers 503.
func (s *Server) handleHealth(c *gin.Context) {
	status := s.scorer.Smoke(c.Request.Context())

	healthy := 0
	for _, ok := range status {
		if ok {
			healthy++
		}
	}

	overall := "healthy"
	code := http.StatusOK
	switch {
	case healthy < scoring.MinHealthyAgents:
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy == scoring.MinHealthyAgents:
		overall = "degraded"
	}

	c.JSON(code, gin.H{
		"status":  overall,
		"agents":  status,
		"healthy": healthy,
		"total":   len(agents.Names()),
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	s.analyze(c, req.Symbol, req.Force)
}

func (s *Server) handleAnalyzeSymbol(c *gin.Context) {
	s.analyze(c, c.Param("symbol"), false)
}

func (s *Server) analyze(c *gin.Context, rawSymbol string, force bool) {
	symbol, err := validation.ValidateSymbol(rawSymbol)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := s.scorer.Score(c.Request.Context(), symbol, scoring.ScoreOptions{Force: force})
	if err != nil {
		s.fail(c, scoreStatus(err), err.Error())
		return
	}
	if result.PerAgent != nil && result.PerAgent.Meta.SuccessCount < scoring.MinHealthyAgents {
		s.fail(c, http.StatusServiceUnavailable, "analysis degraded: fewer than 3 agents succeeded")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"execution_meta": executionMeta{
			DurationMs: time.Since(start).Milliseconds(),
			CacheHit:   result.CacheHit,
			RequestID:  RequestID(c),
		},
	})
}

// handleAnalyzeBatch scores 1..50 symbols with partial success:
// per-symbol failures are reported inline, never as a request failure.
func (s *Server) handleAnalyzeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) == 0 {
		s.fail(c, http.StatusBadRequest, "symbols is required")
		return
	}
	if len(req.Symbols) > maxBatchSymbols {
		s.fail(c, http.StatusBadRequest, "at most 50 symbols per batch")
		return
	}

	start := time.Now()
	items := s.scorer.ScoreBatch(c.Request.Context(), req.Symbols)

	var warnings []string
	if len(items) < len(req.Symbols) {
		warnings = append(warnings, "duplicate or blank symbols were dropped")
	}
	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":  items,
		"warnings": warnings,
		"scored":   len(items) - failed,
		"failed":   failed,
		"execution_meta": executionMeta{
			DurationMs: time.Since(start).Milliseconds(),
			RequestID:  RequestID(c),
		},
	})
}

// handleRegime reports the current market regime. The service never
// fails; stale or fallback snapshots carry an Error field instead.
func (s *Server) handleRegime(c *gin.Context) {
	snap := s.regimes.Current(c.Request.Context(), c.Query("force") == "true")
	c.JSON(http.StatusOK, snap)
}

// scoreStatus maps scorer errors onto HTTP codes.
func scoreStatus(err error) int {
	switch {
	case errors.Is(err, marketdata.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketdata.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the uniform error body: short reason plus request ID.
func (s *Server) fail(c *gin.Context, code int, reason string) {
	c.JSON(code, gin.H{
		"error":      reason,
		"request_id": RequestID(c),
	})
}
