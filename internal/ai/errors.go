package ai

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai provider not configured")

// TimeoutError is returned when one attempt exceeds the per-attempt timeout.
// Timeouts are not retried.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ai completion timed out after %s", e.Timeout)
}

// RateLimitError is returned once the rate-limit retries are exhausted.
type RateLimitError struct {
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ai provider rate limited after %d attempts", e.Attempts)
}

// ProviderError is any other non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider error (status %d): %s", e.StatusCode, e.Body)
}
