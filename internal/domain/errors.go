package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationCurrency      ErrorCode = "VALIDATION_CURRENCY_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Campaign Errors (CAMPAIGN_*)
	ErrorCodeCampaignNotFound         ErrorCode = "CAMPAIGN_NOT_FOUND"
	ErrorCodeCampaignNotActive        ErrorCode = "CAMPAIGN_NOT_ACTIVE"
	ErrorCodeInsufficientCapacity     ErrorCode = "CAMPAIGN_INSUFFICIENT_CAPACITY"
	ErrorCodeCampaignInvalidLifecycle ErrorCode = "CAMPAIGN_INVALID_LIFECYCLE"

	// Reservation Errors (RESERVATION_*)
	ErrorCodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"

	// Investment Errors (INVESTMENT_*)
	ErrorCodeInvestmentNotFound   ErrorCode = "INVESTMENT_NOT_FOUND"
	ErrorCodeInvalidTransition    ErrorCode = "INVESTMENT_INVALID_TRANSITION"
	ErrorCodeChargeInFlight       ErrorCode = "INVESTMENT_CHARGE_IN_FLIGHT"
	ErrorCodeDuplicateKey         ErrorCode = "INVESTMENT_DUPLICATE_IDEMPOTENCY_KEY"
	ErrorCodeDuplicateExternalRef ErrorCode = "INVESTMENT_DUPLICATE_EXTERNAL_REF"

	// Webhook Errors (WEBHOOK_*)
	ErrorCodeSignatureInvalid       ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrorCodeReconciliationConflict ErrorCode = "WEBHOOK_RECONCILIATION_CONFLICT"
	ErrorCodeDeadLetterNotFound     ErrorCode = "WEBHOOK_DEAD_LETTER_NOT_FOUND"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayTransient ErrorCode = "GATEWAY_TRANSIENT"
	ErrorCodeGatewayPermanent ErrorCode = "GATEWAY_PERMANENT"
	ErrorCodeGatewayUnknown   ErrorCode = "GATEWAY_UNKNOWN_PROVIDER"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodePersistence   ErrorCode = "INTERNAL_PERSISTENCE_ERROR"
)

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

// Is matches any DomainError carrying the same code, so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
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

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeCampaignNotFound ||
		code == ErrorCodeInvestmentNotFound ||
		code == ErrorCodeReservationNotFound ||
		code == ErrorCodeDeadLetterNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationCurrency ||
		code == ErrorCodeValidationMissingField
}

// IsRejection reports whether err is a user-visible refusal that left no state behind
func IsRejection(err error) bool {
	code := GetErrorCode(err)
	return IsValidationError(err) ||
		code == ErrorCodeInsufficientCapacity ||
		code == ErrorCodeCampaignNotActive
}

// NewValidationError builds a VALIDATION_FAILED error naming the offending field
func NewValidationError(field, message string) *DomainError {
	return NewDomainError(ErrorCodeValidationFailed, message).WithDetail("field", field)
}

// NewPersistenceError wraps a storage failure
func NewPersistenceError(op string, err error) *DomainError {
	return WrapError(ErrorCodePersistence, op, err)
}

// NewInvalidTransition reports a ledger transition outside the state graph
func NewInvalidTransition(from InvestmentStatus, event LedgerEvent) *DomainError {
	return NewDomainError(ErrorCodeInvalidTransition,
		fmt.Sprintf("cannot apply %s to investment in status %s", event, from)).
		WithDetail("from", string(from)).
		WithDetail("event", string(event))
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationCurrency      = NewDomainError(ErrorCodeValidationCurrency, "invalid currency")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrCampaignNotFound         = NewDomainError(ErrorCodeCampaignNotFound, "campaign not found")
	ErrCampaignNotActive        = NewDomainError(ErrorCodeCampaignNotActive, "campaign is not accepting investments")
	ErrInsufficientCapacity     = NewDomainError(ErrorCodeInsufficientCapacity, "amount exceeds remaining campaign capacity")
	ErrCampaignInvalidLifecycle = NewDomainError(ErrorCodeCampaignInvalidLifecycle, "campaign status change not allowed")

	ErrReservationNotFound = NewDomainError(ErrorCodeReservationNotFound, "reservation not found")

	ErrInvestmentNotFound   = NewDomainError(ErrorCodeInvestmentNotFound, "investment not found")
	ErrInvalidTransition    = NewDomainError(ErrorCodeInvalidTransition, "invalid investment transition")
	ErrChargeInFlight       = NewDomainError(ErrorCodeChargeInFlight, "a charge for this investment is still awaiting confirmation")
	ErrDuplicateKey         = NewDomainError(ErrorCodeDuplicateKey, "an investment with this idempotency key already exists")
	ErrDuplicateExternalRef = NewDomainError(ErrorCodeDuplicateExternalRef, "another investment already holds this provider reference")

	ErrSignatureInvalid       = NewDomainError(ErrorCodeSignatureInvalid, "webhook signature verification failed")
	ErrReconciliationConflict = NewDomainError(ErrorCodeReconciliationConflict, "webhook event could not be reconciled")
	ErrDeadLetterNotFound     = NewDomainError(ErrorCodeDeadLetterNotFound, "dead letter not found")

	ErrUnknownProvider = NewDomainError(ErrorCodeGatewayUnknown, "no gateway configured for payment method")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrPersistence   = NewDomainError(ErrorCodePersistence, "persistence error")
)
