package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// APIError is returned for backend responses outside the 2xx range that do
// not map to a more specific error type.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// AuthenticationError indicates the API key was rejected.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Message
}

// ValidationError indicates the backend rejected the request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Message
}

// RateLimitError indicates the backend throttled the request. RetryAfter is
// the server-suggested wait, or zero if the server did not provide one.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %v", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// TransportError wraps network-level failures reaching the backend.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen is returned when the client's circuit breaker is open and
// requests are being failed fast.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// IsRetriable reports whether the error is transient and worth retrying.
// Rate limits, server errors, and network failures are retriable; auth and
// validation failures are not.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500
	}
	return false
}
