// Package agents implements the five analytical perspectives that feed
// the composite score: fundamentals, momentum, quality, sentiment and
// institutional flow. Agents are pure functions of the data bundle,
// safe for concurrent use, and never return an error for missing data;
// they degrade to a neutral score with reduced confidence instead.
package agents

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// Canonical agent names. These are wire-visible map keys.
const (
	NameFundamentals = "fundamentals"
	NameMomentum     = "momentum"
	NameQuality      = "quality"
	NameSentiment    = "sentiment"
	NameFlow         = "institutional_flow"
)

// Names returns the five agent keys in stable display order.
func Names() []string {
	return []string{NameFundamentals, NameMomentum, NameQuality, NameSentiment, NameFlow}
}

// Agent is the uniform contract the executor runs. Implementations are
// stateless; Analyze must not perform I/O.
type Agent interface {
	Name() string
	Analyze(symbol string, bundle *marketdata.Bundle) (*Result, error)
}

// Result is one agent's verdict on one symbol.
type Result struct {
	Agent      string             `json:"agent"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Failed     bool               `json:"failed,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Meta describes one executor pass across all five agents.
type Meta struct {
	Elapsed      time.Duration `json:"elapsed"`
	FailedAgents []string      `json:"failed_agents"`
	SuccessCount int           `json:"success_count"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Bundle is the full five-agent outcome for one symbol.
type Bundle struct {
	Symbol  string             `json:"symbol"`
	Results map[string]*Result `json:"results"`
	Meta    Meta               `json:"meta"`
}

// Result returns the slot for an agent name, nil when absent.
func (b *Bundle) Result(name string) *Result {
	if b == nil || b.Results == nil {
		return nil
	}
	return b.Results[name]
}

// FailedResult builds the conventional failed slot: neutral score,
// zero confidence.
func FailedResult(agent, cause string) *Result {
	return &Result{
		Agent:      agent,
		Score:      50,
		Confidence: 0,
		Reasoning:  "Agent failed: " + cause,
		Failed:     true,
		Error:      cause,
	}
}

// Degraded builds the insufficient-data result. It is not a failure;
// the score participates in the composite at reduced confidence.
func Degraded(agent, cause string, confidence float64) *Result {
	return &Result{
		Agent:      agent,
		Score:      50,
		Confidence: validation.ClampConfidence(confidence),
		Reasoning:  "Limited analysis: " + cause,
	}
}

// finalize clamps score and confidence into their contract ranges.
func finalize(agent string, score, confidence float64, reasoning string, metrics map[string]float64) *Result {
	for k, v := range metrics {
		if !validation.IsFinite(v) {
			delete(metrics, k)
		}
	}
	return &Result{
		Agent:      agent,
		Score:      validation.ClampScore(score),
		Confidence: validation.ClampConfidence(confidence),
		Reasoning:  reasoning,
		Metrics:    metrics,
	}
}

// All returns one instance of each agent in canonical order.
func All() []Agent {
	return []Agent{
		NewFundamentalsAgent(),
		NewMomentumAgent(),
		NewQualityAgent(),
		NewSentimentAgent(),
		NewFlowAgent(),
	}
}

// linearScale maps v from [lo, hi] onto [0, 100], clamped. Reversed
// bounds (lo > hi) invert the mapping so lower raw values score higher.
func linearScale(v, lo, hi float64) float64 {
	if !validation.IsFinite(v) {
		return 50
	}
	if lo == hi {
		return 50
	}
	score := (v - lo) / (hi - lo) * 100
	return validation.ClampScore(score)
}

// coverage tracks how many expected inputs were usable; confidence is
// the observed fraction.
type coverage struct {
	present  int
	expected int
}

func (c *coverage) note(ok bool) bool {
	c.expected++
	if ok {
		c.present++
	}
	return ok
}

func (c *coverage) confidence() float64 {
	if c.expected == 0 {
		return 0
	}
	return float64(c.present) / float64(c.expected)
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
