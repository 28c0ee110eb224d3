package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Webhook Errors (WEBHOOK_*)
	ErrorCodeInvalidSignature ErrorCode = "WEBHOOK_INVALID_SIGNATURE"
	ErrorCodeMalformedPayload ErrorCode = "WEBHOOK_MALFORMED_PAYLOAD"
	ErrorCodeIgnoredEvent     ErrorCode = "WEBHOOK_IGNORED_EVENT"

	// Idempotency Errors (IDEMPOTENCY_*)
	ErrorCodeEventAlreadyProcessed ErrorCode = "IDEMPOTENCY_EVENT_ALREADY_PROCESSED"

	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound            ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeInvalidTransition      ErrorCode = "TXN_INVALID_TRANSITION"
	ErrorCodeRefundNotFound         ErrorCode = "TXN_REFUND_NOT_FOUND"
	ErrorCodeRefundExceedsAmount    ErrorCode = "TXN_REFUND_EXCEEDS_AMOUNT"
	ErrorCodeRefundInvalidState     ErrorCode = "TXN_REFUND_INVALID_STATE"
	ErrorCodeConcurrentModification ErrorCode = "TXN_CONCURRENT_MODIFICATION"

	// Payout Errors (PAYOUT_*)
	ErrorCodePayoutNotFound        ErrorCode = "PAYOUT_NOT_FOUND"
	ErrorCodePayoutInvalidState    ErrorCode = "PAYOUT_INVALID_STATE"
	ErrorCodePayoutNotRetryable    ErrorCode = "PAYOUT_NOT_RETRYABLE"
	ErrorCodePayoutAlreadyExists   ErrorCode = "PAYOUT_ALREADY_EXISTS"
	ErrorCodePayoutRunInProgress   ErrorCode = "PAYOUT_RUN_IN_PROGRESS"
	ErrorCodeCalculationMismatch   ErrorCode = "PAYOUT_CALCULATION_MISMATCH"
	ErrorCodeBankAccountUnverified ErrorCode = "PAYOUT_BANK_ACCOUNT_UNVERIFIED"
	ErrorCodePayoutInvariant       ErrorCode = "PAYOUT_INVARIANT_VIOLATION"

	// Payout API Errors (GATEWAY_*)
	ErrorCodeGatewayTransient ErrorCode = "GATEWAY_TRANSIENT"
	ErrorCodeGatewayPermanent ErrorCode = "GATEWAY_PERMANENT"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// ErrorCategory groups error codes for operators and tooling deciding
// whether an operation is worth re-attempting.
type ErrorCategory string

const (
	CategoryUntrustedInput       ErrorCategory = "untrusted_input"
	CategoryDuplicate            ErrorCategory = "duplicate"
	CategoryInvalidTransition    ErrorCategory = "invalid_transition"
	CategoryIntegrationTransient ErrorCategory = "integration_transient"
	CategoryIntegrationPermanent ErrorCategory = "integration_permanent"
	CategoryInvariantViolation   ErrorCategory = "invariant_violation"
	CategoryNotFound             ErrorCategory = "not_found"
	CategoryInvalidState         ErrorCategory = "invalid_state"
	CategoryConflict             ErrorCategory = "conflict"
	CategoryValidation           ErrorCategory = "validation"
	CategoryInternal             ErrorCategory = "internal"
)

var codeCategories = map[ErrorCode]ErrorCategory{
	ErrorCodeInvalidSignature:        CategoryUntrustedInput,
	ErrorCodeMalformedPayload:        CategoryUntrustedInput,
	ErrorCodeIgnoredEvent:            CategoryUntrustedInput,
	ErrorCodeEventAlreadyProcessed:   CategoryDuplicate,
	ErrorCodeTxnNotFound:             CategoryNotFound,
	ErrorCodeRefundNotFound:          CategoryNotFound,
	ErrorCodePayoutNotFound:          CategoryNotFound,
	ErrorCodeInvalidTransition:       CategoryInvalidTransition,
	ErrorCodeRefundInvalidState:      CategoryInvalidState,
	ErrorCodePayoutInvalidState:      CategoryInvalidState,
	ErrorCodePayoutNotRetryable:      CategoryInvalidState,
	ErrorCodeBankAccountUnverified:   CategoryInvalidState,
	ErrorCodeConcurrentModification:  CategoryConflict,
	ErrorCodePayoutAlreadyExists:     CategoryConflict,
	ErrorCodePayoutRunInProgress:     CategoryConflict,
	ErrorCodeCalculationMismatch:     CategoryInvariantViolation,
	ErrorCodeRefundExceedsAmount:     CategoryInvariantViolation,
	ErrorCodePayoutInvariant:         CategoryInvariantViolation,
	ErrorCodeGatewayTransient:        CategoryIntegrationTransient,
	ErrorCodeGatewayPermanent:        CategoryIntegrationPermanent,
	ErrorCodeValidationFailed:        CategoryValidation,
	ErrorCodeValidationAmountInvalid: CategoryValidation,
	ErrorCodeValidationMissingField:  CategoryValidation,
	ErrorCodeInternalError:           CategoryInternal,
	ErrorCodeDatabaseError:           CategoryInternal,
}

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code, so sentinel instances work with errors.Is
// even after being copied with details.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail returns a copy of the error carrying an extra detail field.
// Sentinel instances stay untouched.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	cp := &DomainError{
		Err:     e.Err,
		Code:    e.Code,
		Message: e.Message,
		Details: make(map[string]interface{}, len(e.Details)+1),
	}
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return cp
}

// Category returns the operator-facing category of the error code
func (e *DomainError) Category() ErrorCategory {
	if c, ok := codeCategories[e.Code]; ok {
		return c
	}
	return CategoryInternal
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// CategoryOf reports the category of any error. Errors that are not domain errors are internal.
func CategoryOf(err error) ErrorCategory {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Category()
	}
	return CategoryInternal
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return err != nil && CategoryOf(err) == CategoryValidation
}

// Structured error instances
var (
	ErrInvalidSignature = NewDomainError(ErrorCodeInvalidSignature, "webhook signature verification failed")
	ErrMalformedPayload = NewDomainError(ErrorCodeMalformedPayload, "webhook payload could not be parsed")
	ErrIgnoredEvent     = NewDomainError(ErrorCodeIgnoredEvent, "webhook event type is not consumed")

	ErrEventAlreadyProcessed = NewDomainError(ErrorCodeEventAlreadyProcessed, "event already processed")

	ErrTxnNotFound            = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrInvalidTransition      = NewDomainError(ErrorCodeInvalidTransition, "status transition not allowed")
	ErrRefundNotFound         = NewDomainError(ErrorCodeRefundNotFound, "refund not found")
	ErrRefundExceedsAmount    = NewDomainError(ErrorCodeRefundExceedsAmount, "refunds would exceed the transaction amount")
	ErrRefundInvalidState     = NewDomainError(ErrorCodeRefundInvalidState, "refund is in invalid state for this operation")
	ErrConcurrentModification = NewDomainError(ErrorCodeConcurrentModification, "entity was modified concurrently")

	ErrPayoutNotFound        = NewDomainError(ErrorCodePayoutNotFound, "payout not found")
	ErrPayoutInvalidState    = NewDomainError(ErrorCodePayoutInvalidState, "payout is in invalid state for this operation")
	ErrPayoutNotRetryable    = NewDomainError(ErrorCodePayoutNotRetryable, "payout failed permanently and needs correction before retry")
	ErrPayoutAlreadyExists   = NewDomainError(ErrorCodePayoutAlreadyExists, "payout already exists for scope and period")
	ErrPayoutRunInProgress   = NewDomainError(ErrorCodePayoutRunInProgress, "payout run for this period is already in progress")
	ErrCalculationMismatch   = NewDomainError(ErrorCodeCalculationMismatch, "payout items do not sum to the payout total")
	ErrBankAccountUnverified = NewDomainError(ErrorCodeBankAccountUnverified, "no verified active bank account for scope")
	ErrPayoutInvariant       = NewDomainError(ErrorCodePayoutInvariant, "payout amounts are inconsistent")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
