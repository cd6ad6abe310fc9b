package errors

import (
	"fmt"
	"time"
)

// HTTPError represents an HTTP failure returned by a collaborator.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RateLimitError indicates the provider throttled the request.
// RetryAfter, when set, overrides the computed backoff for the next attempt.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// OutputError indicates a collaborator returned something unusable,
// such as an empty completion or a label that cannot be parsed.
type OutputError struct {
	Output  string
	Message string
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	return fmt.Sprintf("unusable output: %s", e.Message)
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
