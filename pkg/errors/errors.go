package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryDeclined          ErrorCategory = "declined"
	CategoryInsufficientFunds ErrorCategory = "insufficient_funds"
	CategoryInvalidAccount    ErrorCategory = "invalid_account"
	CategoryInvalidRequest    ErrorCategory = "invalid_request"
	CategoryRateLimited       ErrorCategory = "rate_limited"
	CategorySystemError       ErrorCategory = "system_error"
	CategoryNetworkError      ErrorCategory = "network_error"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryUnavailable       ErrorCategory = "unavailable"
)

// GatewayError is a provider failure classified as transient (safe to retry)
// or permanent (declines, invalid accounts, rejected requests)
type GatewayError struct {
	Provider       string
	Code           string
	Message        string
	GatewayMessage string
	Category       ErrorCategory
	IsRetriable    bool
	Err            error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.IsRetriable {
		kind = "transient"
	}
	msg := fmt.Sprintf("%s gateway error [%s] %s: %s", kind, e.Provider, e.Code, e.Message)
	if e.GatewayMessage != "" {
		msg += fmt.Sprintf(" (gateway: %s)", e.GatewayMessage)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewTransientError builds a retriable gateway error
func NewTransientError(provider, code, message string, category ErrorCategory, cause error) *GatewayError {
	return &GatewayError{
		Provider:    provider,
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: true,
		Err:         cause,
	}
}

// NewPermanentError builds a non-retriable gateway error
func NewPermanentError(provider, code, message string, category ErrorCategory) *GatewayError {
	return &GatewayError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// IsTransient reports whether err is a retriable gateway error.
// Deadline and cancellation errors surfacing from transport are transient.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	if stderrors.As(err, &gwErr) {
		return gwErr.IsRetriable
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// IsPermanent reports whether err is a non-retriable gateway error
func IsPermanent(err error) bool {
	var gwErr *GatewayError
	if stderrors.As(err, &gwErr) {
		return !gwErr.IsRetriable
	}
	return false
}

// AsGatewayError extracts a GatewayError from err
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := stderrors.As(err, &gwErr)
	return gwErr, ok
}
