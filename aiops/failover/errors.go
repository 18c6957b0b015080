// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package failover

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes produced by provider adapters.
const (
	// ErrCodeRateLimit indicates rate limiting (transient).
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeAuth indicates authentication failure (terminal).
	ErrCodeAuth = "authentication_error"

	// ErrCodeInvalidRequest indicates a malformed request (terminal).
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeContentPolicy indicates a content-policy violation (terminal).
	ErrCodeContentPolicy = "content_policy"

	// ErrCodeServerError indicates a provider server error (transient).
	ErrCodeServerError = "server_error"

	// ErrCodeTimeout indicates a request timeout (transient).
	ErrCodeTimeout = "timeout"

	// ErrCodeUnavailable indicates the provider is overloaded or down
	// (transient).
	ErrCodeUnavailable = "unavailable"
)

// ProviderError is the tagged error provider adapters must produce.
// Terminal errors (bad request, auth failure, content policy) abort the
// provider attempt without consuming retry budget; everything else is
// retried with backoff.
type ProviderError struct {
	// Provider is the provider that returned the error.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// StatusCode is the upstream HTTP status, when known.
	StatusCode int `json:"status_code,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Terminal marks the error as non-retryable.
	Terminal bool `json:"terminal"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a tagged error, deriving Terminal from the
// code and status.
func NewProviderError(provider, code, message string, statusCode int) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		StatusCode: statusCode,
		Message:    message,
		Terminal:   isTerminal(code, statusCode, message),
	}
}

// Classify normalizes an arbitrary error from a provider operation into a
// ProviderError. Tagged errors pass through untouched; untagged errors
// are inspected for the content-policy message convention and otherwise
// treated as transient.
func Classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	msg := err.Error()
	code := ErrCodeServerError
	if containsContentPolicy(msg) {
		code = ErrCodeContentPolicy
	}
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  msg,
		Terminal: isTerminal(code, 0, msg),
		Cause:    err,
	}
}

// isTerminal reports whether a failure must not be retried: bad request,
// auth failures, or a content-policy violation.
func isTerminal(code string, statusCode int, message string) bool {
	switch statusCode {
	case 400, 401, 403:
		return true
	}
	switch code {
	case ErrCodeAuth, ErrCodeInvalidRequest, ErrCodeContentPolicy:
		return true
	}
	return containsContentPolicy(message)
}

func containsContentPolicy(message string) bool {
	return strings.Contains(strings.ToLower(message), "content policy")
}
