// Package provider talks to the external marketplace-data API: category
// discovery, batched product snapshots, and review pages. It combines a
// local leaky-bucket capacity (package ratelimit), a remote-budget
// tracker (package budget), and a gobreaker circuit breaker into a
// single client, mirroring the layered resilience the Kraken client
// applies to exchange calls.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/net/budget"
	"github.com/oppscan/oppscan/internal/net/ratelimit"
	"github.com/oppscan/oppscan/internal/telemetry"
)

const (
	batchSize          = 100
	budgetUnitsPerItem = 2
)

// Client is the sole entry point into the marketplace-data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string

	limiter *ratelimit.Limiter
	tracker *budget.Tracker
	breaker *gobreaker.CircuitBreaker

	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration

	metrics *telemetry.Registry
}

// SetMetrics attaches a telemetry registry. Optional — nil leaves the
// provider-request and circuit-state gauges unrecorded, used freely by
// tests that have no interest in Prometheus wiring.
func (c *Client) SetMetrics(m *telemetry.Registry) {
	c.metrics = m
}

// NewClient wires a client from its resolved configuration, a local
// rate limiter, and a budget tracker. The tracker is bound to the
// limiter's SetRate so every response's refillPerMinute keeps the
// local bucket's rate honest.
func NewClient(cfg config.ProviderConfig, tracker *budget.Tracker) *Client {
	limiter := ratelimit.NewLimiter(cfg.LocalBucketCapacity, float64(cfg.LocalBucketCapacity)/60.0)
	tracker.BindLimiter(limiter.SetRate)

	settings := gobreaker.Settings{
		Name:        "marketplace-api",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Circuit.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Circuit.FailureThreshold
		},
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		userAgent:   "oppscan/1.0",
		limiter:     limiter,
		tracker:     tracker,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
	}
}

type apiEnvelope struct {
	Error           string          `json:"error"`
	TokensLeft      int64           `json:"tokens_left"`
	RefillPerMinute float64         `json:"refill_per_minute"`
	Result          json.RawMessage `json:"result"`
}

// DiscoverCategory walks a category's product listing one page at a
// time, returning ASINs via the yield callback so the orchestrator can
// stop the walk at its MaxASINs cap without buffering the whole category
// in memory.
func (c *Client) DiscoverCategory(ctx context.Context, categoryID string, yield func([]string) error) error {
	cursor := ""
	for {
		page, err := c.discoverPage(ctx, categoryID, cursor)
		if err != nil {
			return err
		}
		if err := yield(page.ASINs); err != nil {
			return err
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) discoverPage(ctx context.Context, categoryID, cursor string) (*DiscoveryPage, error) {
	path := fmt.Sprintf("/v1/categories/%s/products?cursor=%s", categoryID, cursor)
	var page DiscoveryPage
	if err := c.doJSON(ctx, "discover", http.MethodGet, path, nil, &page, 1); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchProducts fetches product snapshots in batches of 100, each
// batch costing 2 budget units per product. Returns the successfully
// fetched products and a slice of per-ASIN errors for the rest.
func (c *Client) FetchProducts(ctx context.Context, asins []string) ([]RawProduct, []error) {
	var products []RawProduct
	var errs []error

	for start := 0; start < len(asins); start += batchSize {
		end := start + batchSize
		if end > len(asins) {
			end = len(asins)
		}
		batch := asins[start:end]

		batchResults, err := c.fetchBatch(ctx, batch)
		if err != nil {
			for _, asin := range batch {
				errs = append(errs, newFetchError(asin, classify(err), err))
			}
			continue
		}
		products = append(products, batchResults...)
	}
	return products, errs
}

func (c *Client) fetchBatch(ctx context.Context, asins []string) ([]RawProduct, error) {
	reqBody, err := json.Marshal(map[string]interface{}{"asins": asins})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrMalformed, err)
	}

	cost := int64(len(asins) * budgetUnitsPerItem)
	var products []RawProduct
	if err := c.doJSON(ctx, "fetch_products", http.MethodPost, "/v1/products/batch", bytes.NewReader(reqBody), &products, cost); err != nil {
		return nil, err
	}
	return products, nil
}

// FetchReviews fetches the most recent reviews for a single ASIN.
func (c *Client) FetchReviews(ctx context.Context, asin string, limit int) ([]RawReview, error) {
	path := fmt.Sprintf("/v1/products/%s/reviews?limit=%d", asin, limit)
	var reviews []RawReview
	if err := c.doJSON(ctx, "fetch_reviews", http.MethodGet, path, nil, &reviews, 1); err != nil {
		return nil, err
	}
	return reviews, nil
}

// HealthCheck reports the client's current budget and circuit state
// without consuming a budget unit.
func (c *Client) HealthCheck(ctx context.Context) Health {
	stats := c.tracker.Stats()
	h := Health{
		Healthy:         c.breaker.State() == gobreaker.StateClosed && !stats.IsExhausted,
		TokensLeft:      stats.Remaining,
		RefillPerMinute: stats.RefillPerMinute,
		LastCheckedAt:   time.Now(),
		CircuitState:    c.breaker.State().String(),
	}
	c.syncGauges(stats.Remaining)
	return h
}

// syncGauges refreshes the provider's token and circuit-state gauges.
// No-op when no registry is attached.
func (c *Client) syncGauges(tokensLeft int64) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderTokensLeft.Set(float64(tokensLeft))
	circuitOpen := 0.0
	if c.breaker.State() != gobreaker.StateClosed {
		circuitOpen = 1.0
	}
	c.metrics.ProviderCircuitOpen.Set(circuitOpen)
}

// doJSON executes one HTTP call through the rate limiter, budget
// check, circuit breaker, and a bounded retry loop, decoding the
// envelope's result field into out on success. endpoint labels the
// provider-request metric and stays fixed per call site rather than
// the raw path, to avoid a per-ASIN cardinality explosion in
// /metrics.
func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, body io.Reader, out interface{}, costUnits int64) error {
	if err := c.tracker.Consume(costUnits); err != nil {
		if _, warning := err.(*budget.WarningError); !warning {
			c.recordRequest(endpoint, "failure")
			return fmt.Errorf("%w: %v", ErrBudgetExceeded, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.backoffBase, c.backoffMax, attempt); err != nil {
				c.recordRequest(endpoint, "failure")
				return fmt.Errorf("%w: %v", ErrTransient, err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.recordRequest(endpoint, "failure")
			return fmt.Errorf("%w: rate limit wait: %v", ErrTransient, err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, method, path, body)
		})
		if err == nil {
			env := result.(*apiEnvelope)
			c.tracker.SyncFromResponse(env.TokensLeft, env.RefillPerMinute)
			c.syncGauges(env.TokensLeft)
			if env.Error != "" {
				c.recordRequest(endpoint, "failure")
				return fmt.Errorf("%w: %s", ErrIntegrity, env.Error)
			}
			if out != nil {
				if err := json.Unmarshal(env.Result, out); err != nil {
					c.recordRequest(endpoint, "failure")
					return fmt.Errorf("%w: decode result: %v", ErrMalformed, err)
				}
			}
			c.recordRequest(endpoint, "success")
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			c.recordRequest(endpoint, "failure")
			return err
		}
	}
	c.recordRequest(endpoint, "failure")
	return fmt.Errorf("%w: exhausted %d retries: %v", ErrTransient, c.maxRetries, lastErr)
}

// recordRequest increments the provider-request counter. No-op when no
// registry is attached.
func (c *Client) recordRequest(endpoint, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordProviderRequest(endpoint, outcome)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body io.Reader) (*apiEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFatal, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrFatal, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", ErrBudgetExceeded, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrMalformed, resp.StatusCode, string(raw))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrMalformed, err)
	}
	return &env, nil
}

func isRetryable(err error) bool {
	return strings.Contains(err.Error(), ErrTransient.Error())
}

func classify(err error) error {
	switch {
	case strings.Contains(err.Error(), ErrBudgetExceeded.Error()):
		return ErrBudgetExceeded
	case strings.Contains(err.Error(), ErrMalformed.Error()):
		return ErrMalformed
	case strings.Contains(err.Error(), ErrIntegrity.Error()):
		return ErrIntegrity
	case strings.Contains(err.Error(), ErrFatal.Error()):
		return ErrFatal
	default:
		return ErrTransient
	}
}

func sleepBackoff(ctx context.Context, base, max time.Duration, attempt int) error {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > max {
		delay = max
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
