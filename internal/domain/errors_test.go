package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDomainError_Error tests error message formatting
func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewDomainError(ErrorCodeCampaignNotFound, "campaign not found"),
			expected: "CAMPAIGN_NOT_FOUND: campaign not found",
		},
		{
			name:     "with wrapped error",
			err:      WrapError(ErrorCodePersistence, "update campaign", errors.New("connection reset")),
			expected: "INTERNAL_PERSISTENCE_ERROR: update campaign: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

// TestDomainError_Is tests sentinel matching through wrapping
func TestDomainError_Is(t *testing.T) {
	detailed := NewDomainError(ErrorCodeInsufficientCapacity, "too much").WithDetail("remaining", int64(10))
	wrapped := fmt.Errorf("reserve: %w", detailed)

	assert.True(t, errors.Is(wrapped, ErrInsufficientCapacity))
	assert.False(t, errors.Is(wrapped, ErrCampaignNotActive))
	assert.True(t, IsDomainError(wrapped, ErrorCodeInsufficientCapacity))
	assert.Equal(t, ErrorCodeInsufficientCapacity, GetErrorCode(wrapped))
}

// TestDomainError_Unwrap tests access to the cause
func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("insert investment", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrPersistence))
}

// TestErrorClassification tests helper predicates
func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		notFound   bool
		rejection  bool
	}{
		{"validation", NewValidationError("amount", "bad"), true, false, true},
		{"currency", ErrValidationCurrency, true, false, true},
		{"capacity", ErrInsufficientCapacity, false, false, true},
		{"not active", ErrCampaignNotActive, false, false, true},
		{"campaign not found", ErrCampaignNotFound, false, true, false},
		{"investment not found", ErrInvestmentNotFound, false, true, false},
		{"persistence", ErrPersistence, false, false, false},
		{"plain error", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.rejection, IsRejection(tt.err))
		})
	}
}

// TestNewInvalidTransition tests transition error details
func TestNewInvalidTransition(t *testing.T) {
	err := NewInvalidTransition(InvestmentStatusFailed, EventSucceeded)

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "failed", err.Details["from"])
	assert.Equal(t, "payment_succeeded", err.Details["event"])
}
