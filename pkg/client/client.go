// Package client is the HTTP collaborator for the agent monitoring SDK.
// It wraps the platform's REST API with an API-key credential, a per-call
// retry policy with exponential backoff, a circuit breaker, and client-side
// rate limiting. All calls are single request/response exchanges.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the default backend endpoint.
const DefaultBaseURL = "http://localhost:5001"

// Config holds client configuration.
type Config struct {
	// APIKey is the platform API credential. Required.
	APIKey string
	// BaseURL is the backend endpoint (default: DefaultBaseURL)
	BaseURL string
	// Retry is the per-call retry policy (uses defaults if zero)
	Retry RetryConfig
	// RequestsPerSecond limits outbound request rate (default: 10, 0 = default)
	RequestsPerSecond float64
	// HTTPClient overrides the underlying http.Client (mainly for tests)
	HTTPClient *http.Client
	// Logger receives request failures; defaults to slog.Default()
	Logger *slog.Logger
}

// Client talks to the monitoring backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retry      RetryConfig
	breaker    *CircuitBreaker
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a backend client. It fails fast on a missing API key.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ValidationError{Message: "api key is required"}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}
	if retry.Timeout == 0 {
		retry.Timeout = 10 * time.Second
	}
	if retry.BackoffMultiplier == 0 {
		retry.BackoffMultiplier = 2.0
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: retry.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var breaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		retry:      retry,
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     logger.With("component", "client"),
	}, nil
}

// HealthCheck verifies the backend is reachable and the credential works.
func (c *Client) HealthCheck(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do executes one API call with rate limiting, retry with exponential
// backoff, and circuit breaking. body is JSON-encoded when non-nil; the
// response is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("encode request: %v", err)}
		}
	}

	var lastErr error
	backoff := c.retry.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				return fmt.Errorf("%s %s: %w", method, path, err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Err: err}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		err := c.roundTrip(attemptCtx, method, path, query, payload, out)
		cancel()

		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return nil
		}
		lastErr = err

		if c.breaker != nil && IsRetriable(err) {
			c.breaker.RecordFailure()
		}
		if !IsRetriable(err) {
			return err
		}
		if attempt == c.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return &TransportError{Err: ctx.Err()}
		}

		// Respect a server-provided Retry-After over our own backoff
		wait := backoff
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > wait {
			wait = rle.RetryAfter
		}

		c.logger.Warn("request failed, retrying",
			"method", method, "path", path,
			"attempt", attempt+1, "max_attempts", c.retry.MaxRetries+1,
			"backoff", wait, "error", err)

		select {
		case <-time.After(wait):
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if c.retry.MaxBackoff > 0 && backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			return &TransportError{Err: ctx.Err()}
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.retry.MaxRetries+1, lastErr)
}

// roundTrip performs a single HTTP exchange and maps the response to the
// error taxonomy.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthenticationError{Message: errorMessage(data, "invalid api key")}
	case resp.StatusCode == http.StatusBadRequest:
		return &ValidationError{Message: errorMessage(data, "bad request")}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// errorMessage extracts the backend's error field, falling back to the
// raw body or a default.
func errorMessage(data []byte, fallback string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(data) > 0 && len(data) < 200 {
		return string(data)
	}
	return fallback
}

// parseRetryAfter handles the delta-seconds form of the Retry-After header.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
