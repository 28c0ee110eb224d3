package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryNetworkError   ErrorCategory = "network_error"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryRateLimited    ErrorCategory = "rate_limited"
	CategorySystemError    ErrorCategory = "system_error"
	CategoryUnavailable    ErrorCategory = "unavailable"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryRejected       ErrorCategory = "rejected"
	CategoryUnauthorized   ErrorCategory = "unauthorized"
	CategoryInvalidReply   ErrorCategory = "invalid_response"
)

// IntegrationError is a failed call to an external API with enough context to
// decide whether repeating the call could succeed.
type IntegrationError struct {
	Err            error
	Details        map[string]interface{}
	Code           string
	Message        string
	GatewayMessage string
	Category       ErrorCategory
	StatusCode     int
	IsRetriable    bool
}

func (e *IntegrationError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// NewIntegrationError creates a new integration error
func NewIntegrationError(code, message string, category ErrorCategory, retriable bool) *IntegrationError {
	return &IntegrationError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
		Details:     make(map[string]interface{}),
	}
}

// FromTransportError classifies an error returned before any HTTP response arrived
func FromTransportError(err error) *IntegrationError {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.As(err, &netErr) && netErr.Timeout():
		e := NewIntegrationError("TIMEOUT", "request timed out", CategoryTimeout, true)
		e.Err = err
		return e
	case stderrors.Is(err, context.Canceled):
		e := NewIntegrationError("CANCELED", "request canceled", CategoryNetworkError, true)
		e.Err = err
		return e
	default:
		e := NewIntegrationError("NETWORK", "request failed", CategoryNetworkError, true)
		e.Err = err
		return e
	}
}

// FromStatusCode classifies a non-2xx HTTP response.
// 5xx, 408 and 429 are transient; every other 4xx is permanent.
func FromStatusCode(status int, gatewayMessage string) *IntegrationError {
	var e *IntegrationError
	switch {
	case status == http.StatusTooManyRequests:
		e = NewIntegrationError("RATE_LIMITED", "rate limited by gateway", CategoryRateLimited, true)
	case status == http.StatusRequestTimeout:
		e = NewIntegrationError("TIMEOUT", "gateway timed out", CategoryTimeout, true)
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		e = NewIntegrationError("UNAVAILABLE", "gateway unavailable", CategoryUnavailable, true)
	case status >= 500:
		e = NewIntegrationError("SERVER_ERROR", "gateway internal error", CategorySystemError, true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewIntegrationError("UNAUTHORIZED", "gateway rejected credentials", CategoryUnauthorized, false)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		e = NewIntegrationError("REJECTED", "gateway rejected request", CategoryRejected, false)
	default:
		e = NewIntegrationError("INVALID_REQUEST", "gateway refused request", CategoryInvalidRequest, false)
	}
	e.StatusCode = status
	e.GatewayMessage = gatewayMessage
	return e
}

// IsRetriable reports whether err is an IntegrationError worth repeating.
// Unknown errors are treated as retriable: nothing says the call was refused.
func IsRetriable(err error) bool {
	var ie *IntegrationError
	if stderrors.As(err, &ie) {
		return ie.IsRetriable
	}
	return err != nil
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
