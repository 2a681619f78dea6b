package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// symbolPattern accepts 1-10 uppercase alphanumerics plus '.' and '-'
// (covers class shares like BRK.B and hyphenated tickers like BF-B).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9.-]{1,10}$`)

// NormalizeSymbol upper-cases and trims a ticker for use as a canonical key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol normalizes a ticker and rejects anything outside the
// accepted ticker alphabet. Returns the canonical form.
func ValidateSymbol(symbol string) (string, error) {
	s := NormalizeSymbol(symbol)
	if s == "" {
		return "", &ValidationError{Field: "symbol", Message: "is required"}
	}
	if !symbolPattern.MatchString(s) {
		return "", &ValidationError{Field: "symbol", Message: fmt.Sprintf("invalid ticker %q", s)}
	}
	return s, nil
}

// IsFinite reports whether v is a usable real number. NaN and Inf are never
// valid values at component boundaries.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteOr returns v when finite, fallback otherwise.
func FiniteOr(v, fallback float64) float64 {
	if IsFinite(v) {
		return v
	}
	return fallback
}

// Clamp bounds v to [lo, hi], mapping non-finite inputs to lo.
func Clamp(v, lo, hi float64) float64 {
	if !IsFinite(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore bounds an agent score to [0, 100].
func ClampScore(v float64) float64 {
	return Clamp(v, 0, 100)
}

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Validator accumulates field errors across a multi-field check
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// Positive validates that a number is strictly greater than zero
func (v *Validator) Positive(field string, value float64) {
	if !IsFinite(value) || value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// Range validates that a number lies inside [lo, hi]
func (v *Validator) Range(field string, value, lo, hi float64) {
	if !IsFinite(value) || value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %g and %g", lo, hi))
	}
}
