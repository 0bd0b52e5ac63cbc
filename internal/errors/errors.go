// Package errors provides the upstream error taxonomy for the gateway.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying upstream failures.
var (
	// ErrUpstreamAuth means the token endpoint was unreachable, rejected the
	// credentials, or answered with something that is not a token.
	ErrUpstreamAuth = errors.New("upstream authentication failed")
	// ErrUpstreamResource means a partner or logo API call returned non-2xx
	// or a malformed body.
	ErrUpstreamResource = errors.New("upstream resource request failed")
	// ErrNotFound means the upstream answered but had nothing for the lookup.
	ErrNotFound = errors.New("resource not found")
)

// APIError represents a failed call to an external API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAuthError creates an APIError classified as ErrUpstreamAuth.
func NewAuthError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message, Err: ErrUpstreamAuth}
}

// NewResourceError creates an APIError classified as ErrUpstreamResource.
func NewResourceError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message, Err: ErrUpstreamResource}
}

// NewNotFoundError creates an APIError classified as ErrNotFound.
func NewNotFoundError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message, Err: ErrNotFound}
}

// WrapAuth classifies an arbitrary failure (transport, decoding) as ErrUpstreamAuth
// while keeping the cause reachable through errors.Is/As.
func WrapAuth(service, message string, cause error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrUpstreamAuth, service, message, cause)
}

// WrapResource classifies an arbitrary failure as ErrUpstreamResource.
func WrapResource(service, message string, cause error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrUpstreamResource, service, message, cause)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUpstreamAuth):
		return "upstream_auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamResource):
		return "upstream_resource"
	default:
		return "transport"
	}
}
