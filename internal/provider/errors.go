package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure. Kinds are enumerated explicitly so
// the retry policy never guesses from error text.
type ErrorKind string

const (
	KindRateLimited         ErrorKind = "rate_limited"
	KindAuthFailed          ErrorKind = "auth_failed"
	KindTimeout             ErrorKind = "timeout"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
)

// Transient reports whether the kind is safe to retry. Auth failures and
// invalid requests will fail identically on every attempt.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindProviderUnavailable:
		return true
	}
	return false
}

// Error is the normalized failure shape for any provider call.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient satisfies the resilience package's retryability check.
func (e *Error) Transient() bool {
	return e.Kind.Transient()
}

// NewError wraps err as a normalized provider error.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the normalized kind from err, or "" if err is not a
// provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// kindFromStatus maps an HTTP status code to a normalized kind.
func kindFromStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindAuthFailed
	case code == 408:
		return KindTimeout
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindProviderUnavailable
	default:
		return KindInvalidRequest
	}
}

// classify wraps an SDK error using its HTTP status when available, falling
// back to context-deadline detection.
func classify(provider string, statusCode int, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, KindTimeout, err)
	}
	if statusCode > 0 {
		return NewError(provider, kindFromStatus(statusCode), err)
	}
	return NewError(provider, KindProviderUnavailable, err)
}
