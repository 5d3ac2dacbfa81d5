package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// ProviderErrorKind classifies how a provider call failed.
type ProviderErrorKind int

const (
	// ProviderErrHTTP means the provider answered with a non-2xx status.
	ProviderErrHTTP ProviderErrorKind = iota

	// ProviderErrConnection means the provider could not be reached at all.
	// Examples: DNS failure, connection refused, TLS handshake failure.
	ProviderErrConnection

	// ProviderErrTimeout means the call or the job exceeded its time budget.
	ProviderErrTimeout

	// ProviderErrJobFailed means an asynchronous job reached a failure state.
	ProviderErrJobFailed

	// ProviderErrProtocol means the provider broke its contract.
	// Examples: undecodable body, success status with no retrievable content.
	ProviderErrProtocol
)

// String returns a human-readable label for the error kind.
func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderErrHTTP:
		return "http"
	case ProviderErrConnection:
		return "connection"
	case ProviderErrTimeout:
		return "timeout"
	case ProviderErrJobFailed:
		return "job_failed"
	case ProviderErrProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ProviderError is a structured failure from a remote generation provider.
type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string // "openai", "kokoro", "automatic1111", "ollama"
	Operation  string // "image", "video.submit", "speech", ...
	StatusCode int    // HTTP status, 0 when not applicable
	Body       []byte // raw response body for HTTP errors
	RequestID  string // x-request-id header when the provider sent one
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = fmt.Sprintf("status %d: %s", e.StatusCode, truncate(string(e.Body), 300))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Provider, e.Operation, e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s %s [%s] %s", e.Provider, e.Operation, e.Kind, msg)
}

// Unwrap enables errors.Is/errors.As on the cause chain.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewHTTPError records a non-2xx provider answer.
func NewHTTPError(provider, operation string, status int, body []byte) *ProviderError {
	return &ProviderError{
		Kind:       ProviderErrHTTP,
		Provider:   provider,
		Operation:  operation,
		StatusCode: status,
		Body:       body,
	}
}

// NewTransportError classifies a failure that happened before any HTTP answer.
func NewTransportError(provider, operation string, err error) *ProviderError {
	kind := ProviderErrConnection
	if isTimeout(err) {
		kind = ProviderErrTimeout
	}
	return &ProviderError{
		Kind:      kind,
		Provider:  provider,
		Operation: operation,
		Message:   "request failed",
		Cause:     err,
	}
}

// NewProtocolError records a provider answer that could not be used.
func NewProtocolError(provider, operation, message string, cause error) *ProviderError {
	return &ProviderError{
		Kind:      ProviderErrProtocol,
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsHTTPStatus reports whether err is a provider HTTP failure with the status.
func IsHTTPStatus(err error, status int) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderErrHTTP && pe.StatusCode == status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
