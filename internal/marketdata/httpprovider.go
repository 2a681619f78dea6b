package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// HTTPProviderConfig configures the vendor HTTP client.
type HTTPProviderConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// HTTPProvider consumes a JSON equity-data vendor. The vendor exposes a
// bundle endpoint (history + indicators + fundamentals + statements) and a
// history endpoint. Requests pass through a token-bucket rate limiter and a
// circuit breaker so a misbehaving vendor degrades into ErrUnavailable
// instead of cascading.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a vendor client with defaults filled in.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Unknown tickers are caller mistakes, not vendor outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSymbolNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Market data circuit breaker state change")
		},
	})

	return &HTTPProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:    breaker,
	}, nil
}

// Comprehensive fetches the full bundle for a symbol. asOf zero means latest.
func (p *HTTPProvider) Comprehensive(ctx context.Context, symbol string, asOf time.Time) (*Bundle, error) {
	endpoint := fmt.Sprintf("%s/v1/bundle/%s", p.baseURL, url.PathEscape(symbol))
	if !asOf.IsZero() {
		endpoint += "?asOf=" + asOf.Format("2006-01-02")
	}

	var bundle Bundle
	if err := p.getJSON(ctx, endpoint, &bundle); err != nil {
		return nil, err
	}

	bundle.Symbol = symbol
	if bundle.AsOf.IsZero() {
		bundle.AsOf = asOf
	}
	// Vendors occasionally leak future bars around the as-of boundary.
	bundle.History = TruncateBars(bundle.History, asOf)
	bundle.Benchmark = TruncateBars(bundle.Benchmark, asOf)

	return &bundle, nil
}

// History fetches daily bars over [start, end].
func (p *HTTPProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/history/%s?start=%s&end=%s",
		p.baseURL, url.PathEscape(symbol),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	var resp struct {
		Bars []Bar `json:"bars"`
	}
	if err := p.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

// getJSON performs a rate-limited, breaker-guarded GET and decodes the body.
func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		start := time.Now()
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrSymbolNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: vendor rate limit", ErrUnavailable)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: vendor status %d", ErrUnavailable, resp.StatusCode)
		}

		if err := json.Unmarshal(body, target); err != nil {
			return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}

		log.Debug().
			Str("endpoint", endpoint).
			Dur("latency", time.Since(start)).
			Msg("Vendor request completed")

		return nil, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return err
	}
	return nil
}
