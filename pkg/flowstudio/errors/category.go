// Package errors classifies collaborator failures and retries the transient
// ones.
//
// LLM providers, classifiers and retrieval stores fail either transiently
// (throttling, 5xx, deadlines) or permanently (bad credentials, unknown
// model). Categorize sorts an error into one of those buckets, or into
// CategoryInvalid when the request or the collaborator's output was
// malformed, and WithRetryContext retries only the transient bucket.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category is the retry class of an error.
type Category int

const (
	CategoryTransient Category = iota
	CategoryPermanent
	// CategoryInvalid is a malformed request or unusable output. Sending the
	// same request again will not help.
	CategoryInvalid
)

var categoryNames = [...]string{
	CategoryTransient: "transient",
	CategoryPermanent: "permanent",
	CategoryInvalid:   "invalid",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Retryable lets a collaborator error state its own category. Categorize
// consults it before looking at concrete error types.
type Retryable interface {
	Retryable() bool
}

// CategorizedError pins a category to an error. Retries is the number of
// calls made before giving up.
type CategorizedError struct {
	Err      error
	Category Category
	Retries  int
	Context  string
}

func (e *CategorizedError) Error() string {
	msg := fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Retries)
	if e.Context == "" {
		return msg
	}
	return e.Context + ": " + msg
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// NewCategorized tags err with category. op names the failed operation.
func NewCategorized(err error, category Category, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: category, Context: op}
}

func Transient(err error, op string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, op)
}

func Permanent(err error, op string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, op)
}

func Invalid(err error, op string) *CategorizedError {
	return NewCategorized(err, CategoryInvalid, op)
}

// Categorize returns the retry class of err. Errors it does not recognise
// are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}
	if tagged, ok := as[*CategorizedError](err); ok {
		return tagged.Category
	}
	if r, ok := as[Retryable](err); ok {
		if r.Retryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}
	if h, ok := as[*HTTPError](err); ok {
		return categorizeStatus(h.StatusCode)
	}
	switch {
	case isA[*RateLimitError](err), isA[*TimeoutError](err):
		return CategoryTransient
	case isA[*OutputError](err):
		return CategoryInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}
	return CategoryPermanent
}

func categorizeStatus(code int) Category {
	switch {
	case code == 408 || code == 429 || code >= 500:
		return CategoryTransient
	case code == 400 || code == 422:
		return CategoryInvalid
	}
	return CategoryPermanent
}

func as[T any](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func isA[T error](err error) bool {
	_, ok := as[T](err)
	return ok
}

// IsRetryable reports whether Categorize puts err in CategoryTransient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsInvalid reports whether Categorize puts err in CategoryInvalid.
func IsInvalid(err error) bool {
	return Categorize(err) == CategoryInvalid
}
