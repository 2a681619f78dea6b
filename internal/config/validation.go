package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the whole configuration and reports every violation
// at once rather than failing on the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("must be development, staging or production, got %q", c.App.Environment),
		})
	}

	if c.Cache.MaxSize <= 0 {
		errs = append(errs, ValidationError{Field: "cache.max_size", Message: "must be positive"})
	}
	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "cache.ttl_seconds", Message: "must be positive"})
	}

	if c.Agents.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "agents.timeout_seconds", Message: "must be positive"})
	}
	if c.Agents.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "agents.max_retries", Message: "must not be negative"})
	}

	if c.Regime.TTLSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "regime.ttl_seconds", Message: "must be positive"})
	}
	if c.Regime.VolLow >= c.Regime.VolHigh {
		errs = append(errs, ValidationError{
			Field:   "regime.vol_low",
			Message: fmt.Sprintf("must be below regime.vol_high (%v >= %v)", c.Regime.VolLow, c.Regime.VolHigh),
		})
	}

	if !c.Weights.Adaptive {
		if err := c.Weights.Static().Validate(); err != nil {
			errs = append(errs, ValidationError{Field: "weights", Message: err.Error()})
		}
	}

	errs = append(errs, c.validateRisk()...)

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("must be in 1..65535, got %d", c.API.Port),
		})
	}
	if c.API.RatePerSecond <= 0 {
		errs = append(errs, ValidationError{Field: "api.rate_per_second", Message: "must be positive"})
	}

	if c.Backtest.MaxRuns <= 0 {
		errs = append(errs, ValidationError{Field: "backtest.max_runs", Message: "must be positive"})
	}
	if c.Backtest.StoreDir == "" {
		errs = append(errs, ValidationError{Field: "backtest.store_dir", Message: "must not be empty"})
	}

	if c.LLM.Enabled() && c.LLM.APIKey == "" && c.Vault.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.api_key",
			Message: "required when llm.provider is set and Vault is not configured",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateRisk() ValidationErrors {
	var errs ValidationErrors
	fractions := []struct {
		field string
		value float64
	}{
		{"risk.max_drawdown", c.Risk.MaxDrawdown},
		{"risk.defensive_cash_buffer", c.Risk.DefensiveCashBuffer},
		{"risk.vol_scale_factor", c.Risk.VolScaleFactor},
		{"risk.max_position_size", c.Risk.MaxPositionSize},
		{"risk.max_sector_concentration", c.Risk.MaxSectorConcentration},
	}
	for _, f := range fractions {
		if f.value <= 0 || f.value > 1 {
			errs = append(errs, ValidationError{
				Field:   f.field,
				Message: fmt.Sprintf("must be in (0, 1], got %v", f.value),
			})
		}
	}
	if c.Risk.VolCeiling <= 0 {
		errs = append(errs, ValidationError{Field: "risk.vol_ceiling", Message: "must be positive"})
	}
	if c.Risk.MaxPositionSize > c.Risk.MaxSectorConcentration {
		errs = append(errs, ValidationError{
			Field:   "risk.max_position_size",
			Message: "must not exceed risk.max_sector_concentration",
		})
	}
	return errs
}
