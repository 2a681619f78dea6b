// Package executor fans the five analytical agents out per symbol,
// enforcing per-agent deadlines, retrying transient faults with
// exponential backoff and folding every failure mode into the failed
// AgentResult convention. The executor itself never returns an error;
// callers read degradation off the bundle metadata.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/validation"
)

// MaxReasoningLength bounds the reasoning text carried by failed slots.
const MaxReasoningLength = 100

// Config tunes per-agent execution. Zero values fall back to defaults.
type Config struct {
	Timeout     time.Duration // per-attempt deadline
	MaxAttempts int           // attempts per agent, transient faults only
	BackoffMin  time.Duration // first retry delay
	BackoffMax  time.Duration // retry delay ceiling
}

// DefaultConfig returns the production execution policy: 30s per
// attempt, 3 attempts, 2s/4s backoff schedule capped at 10s.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BackoffMin:  2 * time.Second,
		BackoffMax:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = d.BackoffMin
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	return c
}

// Executor runs a fixed set of agents concurrently. Stateless apart
// from configuration; safe for concurrent use.
type Executor struct {
	agents []agents.Agent
	cfg    Config
}

// New builds an executor over the given agents. Passing nil uses the
// standard five.
func New(list []agents.Agent, cfg Config) *Executor {
	if len(list) == 0 {
		list = agents.All()
	}
	return &Executor{agents: list, cfg: cfg.withDefaults()}
}

// ExecuteAll runs every agent against the bundle concurrently and
// aggregates the results. All agent keys are always present in the
// returned bundle; partial failure is a normal outcome.
func (e *Executor) ExecuteAll(ctx context.Context, symbol string, bundle *marketdata.Bundle) *agents.Bundle {
	start := time.Now()

	if cause := validateBundle(bundle); cause != "" {
		return e.shortCircuit(symbol, cause, start)
	}

	results := make(map[string]*agents.Result, len(e.agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, agent := range e.agents {
		wg.Add(1)
		go func(agent agents.Agent) {
			defer wg.Done()
			res := e.runAgent(ctx, agent, symbol, bundle)
			mu.Lock()
			results[agent.Name()] = res
			mu.Unlock()
		}(agent)
	}
	wg.Wait()

	return e.aggregate(symbol, results, start)
}

// shortCircuit fills every slot with the validation failure without
// invoking any agent.
func (e *Executor) shortCircuit(symbol, cause string, start time.Time) *agents.Bundle {
	log.Warn().Str("symbol", symbol).Str("cause", cause).
		Msg("Data validation failed, skipping all agents")

	results := make(map[string]*agents.Result, len(e.agents))
	for _, agent := range e.agents {
		results[agent.Name()] = failedSlot(agent.Name(), cause)
		metrics.RecordAgentExecution(agent.Name(), metrics.OutcomeSkipped, 0)
	}
	return e.aggregate(symbol, results, start)
}

func (e *Executor) aggregate(symbol string, results map[string]*agents.Result, start time.Time) *agents.Bundle {
	var failed []string
	success := 0
	for name, res := range results {
		if res.Failed {
			failed = append(failed, name)
		} else {
			success++
		}
	}
	sort.Strings(failed)
	if len(failed) > 0 {
		metrics.ExecutorDegraded.Inc()
	}

	elapsed := time.Since(start)
	log.Debug().
		Str("symbol", symbol).
		Dur("elapsed", elapsed).
		Int("success", success).
		Strs("failed", failed).
		Msg("Agent execution pass complete")

	return &agents.Bundle{
		Symbol:  symbol,
		Results: results,
		Meta: agents.Meta{
			Elapsed:      elapsed,
			FailedAgents: failed,
			SuccessCount: success,
			Timestamp:    time.Now().UTC(),
		},
	}
}

// validateBundle checks the required top-level fields. The returned
// cause names the offending field; empty means valid.
func validateBundle(bundle *marketdata.Bundle) string {
	switch {
	case bundle == nil:
		return "data bundle is missing"
	case len(bundle.History) == 0:
		return "historical_data is empty"
	case bundle.Indicators == nil:
		return "indicators is missing"
	case bundle.Info == nil:
		return "info is missing"
	}
	return ""
}

type attemptOutcome struct {
	result *agents.Result
	err    error
}

// runAgent drives one agent through its attempt loop. Every exit path
// produces a usable Result; sibling agents are never affected.
func (e *Executor) runAgent(ctx context.Context, agent agents.Agent, symbol string, bundle *marketdata.Bundle) *agents.Result {
	name := agent.Name()
	start := time.Now()
	backoff := e.cfg.BackoffMin

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return e.finish(name, failedSlot(name, "canceled: "+err.Error()), metrics.OutcomeTimeout, start)
		}

		res, err := e.attempt(ctx, agent, symbol, bundle)
		if err == nil {
			out, ok := sanitize(name, res)
			if !ok {
				// Malformed results are a permanent fault of the agent,
				// not of the data; never retried.
				metrics.RecordAgentExecution(name, metrics.OutcomeBadShape, time.Since(start).Seconds())
				return out
			}
			return e.finish(name, out, metrics.OutcomeSuccess, start)
		}
		lastErr = err

		if !isTransient(err) {
			return e.finish(name, failedSlot(name, err.Error()), metrics.OutcomePermanent, start)
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		log.Warn().Err(err).
			Str("agent", name).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Transient agent failure, retrying with backoff")
		metrics.AgentRetries.WithLabelValues(name).Inc()

		select {
		case <-ctx.Done():
			return e.finish(name, failedSlot(name, "canceled during backoff: "+ctx.Err().Error()),
				metrics.OutcomeTimeout, start)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.cfg.BackoffMax {
			backoff = e.cfg.BackoffMax
		}
	}

	outcome := metrics.NormalizeAgentError(lastErr.Error())
	return e.finish(name, failedSlot(name,
		fmt.Sprintf("%s after %d attempts", lastErr.Error(), e.cfg.MaxAttempts)),
		outcome, start)
}

func (e *Executor) finish(name string, res *agents.Result, outcome string, start time.Time) *agents.Result {
	metrics.RecordAgentExecution(name, outcome, time.Since(start).Seconds())
	return res
}

// attempt runs one agent call under its own deadline. The agent body
// executes on a detached goroutine so a hung agent cannot stall the
// attempt loop; its slot times out and the goroutine is abandoned.
func (e *Executor) attempt(ctx context.Context, agent agents.Agent, symbol string, bundle *marketdata.Bundle) (*agents.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	outcome := make(chan attemptOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- attemptOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := agent.Analyze(symbol, bundle)
		outcome <- attemptOutcome{result: res, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("agent timeout after %s: %w", e.cfg.Timeout, context.DeadlineExceeded)
	case out := <-outcome:
		return out.result, out.err
	}
}

// sanitize validates the shape of an agent's return value and clamps
// its fields into contract ranges. ok=false means the result was
// unusable and has been replaced by a failed slot.
func sanitize(name string, res *agents.Result) (*agents.Result, bool) {
	if res == nil {
		return failedSlot(name, "invalid result shape: nil result"), false
	}
	if !validation.IsFinite(res.Score) || !validation.IsFinite(res.Confidence) {
		return failedSlot(name, "invalid result shape: non-finite score or confidence"), false
	}

	out := *res
	out.Agent = name
	out.Score = validation.ClampScore(out.Score)
	out.Confidence = validation.ClampConfidence(out.Confidence)
	if out.Failed {
		out.Score = 50
		out.Confidence = 0
	}
	for k, v := range out.Metrics {
		if !validation.IsFinite(v) {
			delete(out.Metrics, k)
		}
	}
	return &out, true
}

func failedSlot(name, cause string) *agents.Result {
	res := agents.FailedResult(name, cause)
	res.Reasoning = truncate(res.Reasoning, MaxReasoningLength)
	return res
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// isTransient reports whether an error is worth retrying. The closed
// set is timeouts and connection-level failures; everything else is a
// permanent fault of the agent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
