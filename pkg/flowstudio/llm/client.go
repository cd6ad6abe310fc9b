// Package llm defines the model provider boundary used by flow executors.
//
// Client issues a single completion. Classifier picks one label out of a
// closed set. EinoClient adapts any eino chat model (OpenAI by default) to
// Client, PromptClassifier builds a Classifier on top of any Client, and
// MockClient serves canned responses for tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Client issues completions against a model provider.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Classifier assigns a label to a piece of text.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResult, error)
}

// ErrEmptyResponse indicates the provider returned no content.
var ErrEmptyResponse = errors.New("empty response from provider")

// Error is a provider failure. It implements Retryable so callers can retry
// throttling and server errors without inspecting provider-specific types.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *Error) Retryable() bool {
	switch {
	case e.StatusCode == 408, e.StatusCode == 429, e.StatusCode >= 500:
		return true
	case errors.Is(e.Err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// wrapProviderError converts an SDK error into *Error, recovering the HTTP
// status from the message when the SDK only exposes it as text.
func wrapProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	e := &Error{Provider: provider, Op: op, Err: err}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		e.StatusCode, _ = strconv.Atoi(m[1])
	}
	return e
}
