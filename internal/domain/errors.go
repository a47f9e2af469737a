package domain

import (
	"fmt"
	"time"
)

// ValidationError reports missing or malformed client input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func NewValidationError(field, msg string) ValidationError {
	return ValidationError{Field: field, Msg: msg}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

// UpstreamError wraps a GDS, FX or provider call that failed or returned an
// unexpected shape.
type UpstreamError struct {
	Provider string
	Msg      string
	Err      error
}

func (e UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Msg)
}

func (e UpstreamError) Unwrap() error { return e.Err }

// PaymentError reports a transaction that did not verify as successful.
type PaymentError struct {
	Reference string
	Status    string
}

func (e PaymentError) Error() string {
	return fmt.Sprintf("payment %s not successful (status %q)", e.Reference, e.Status)
}

// RateLimitError carries the retry-after hint surfaced as a 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// AuthError covers bad credentials and locked accounts.
type AuthError struct {
	Msg string
}

func (e AuthError) Error() string { return e.Msg }
