package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the shared failure taxonomy every adapter classifies into.
// The router never sees a backend-specific error shape.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"        // connection refused/reset, DNS, timeout
	KindAuth        ErrorKind = "authentication" // missing or rejected credential
	KindQuota       ErrorKind = "quota"          // 429 or vendor quota message
	KindOverloaded  ErrorKind = "overloaded"     // 503/504, transient server trouble
	KindValidation  ErrorKind = "validation"     // malformed request, never reaches a provider
	KindNoImage     ErrorKind = "no_image"       // backend answered without an image payload
	KindCancelled   ErrorKind = "cancelled"      // caller gave up, not a failure
	KindUnsupported ErrorKind = "unsupported"    // adapter lacks the capability
	KindInternal    ErrorKind = "internal"       // catch-all
)

// ProviderError tags a backend failure with its taxonomy kind and the
// provider that produced it.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may be answered by a fallback
// attempt. Everything not listed here is fatal.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindQuota, KindOverloaded:
		return true
	}
	return false
}

// NewProviderError builds a tagged error wrapping the backend cause.
func NewProviderError(kind ErrorKind, provider, message string, cause error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message, Err: cause}
}

// KindOf extracts the taxonomy kind from any error, defaulting to internal.
// Context cancellation is recognized even when the adapter did not tag it.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindInternal
}

// IsRetryable reports whether a failure is worth a fallback hop.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindQuota, KindOverloaded:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status code to a taxonomy kind. Status codes
// are trusted before message wording.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindQuota
	case status == 503 || status == 504:
		return KindOverloaded
	case status == 400 || status == 404 || status == 422:
		return KindValidation
	case status >= 500:
		return KindOverloaded
	}
	return KindInternal
}

// ClassifyMessage is the best-effort fallback when no status code is
// available. Vendor wording is not guaranteed stable; status mapping is
// always preferred.
func ClassifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "quota") || strings.Contains(m, "rate limit") || strings.Contains(m, "resource_exhausted") || strings.Contains(m, "429"):
		return KindQuota
	case strings.Contains(m, "overloaded") || strings.Contains(m, "unavailable") || strings.Contains(m, "503"):
		return KindOverloaded
	case strings.Contains(m, "api key") || strings.Contains(m, "unauthorized") || strings.Contains(m, "unauthenticated") || strings.Contains(m, "permission"):
		return KindAuth
	case strings.Contains(m, "connection refused") || strings.Contains(m, "connection reset") || strings.Contains(m, "no such host") || strings.Contains(m, "timeout") || strings.Contains(m, "deadline"):
		return KindNetwork
	}
	return KindInternal
}

// Standard domain errors surfaced by the orchestration layer.
var (
	ErrEmptyHistory    = errors.New("chat request must carry at least one message")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingModel    = errors.New("model name is required")
	ErrConfirmRequired = errors.New("critical-risk request requires explicit confirmation")
	ErrNoImageProduced = errors.New("backend produced no image payload")
	ErrUnknownTier     = errors.New("unknown preference tier")
)
