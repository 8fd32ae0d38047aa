package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayError_Classification(t *testing.T) {
	transient := NewTransientError("card", "HTTP_503", "provider unavailable", CategoryUnavailable, nil)
	permanent := NewPermanentError("card", "DECLINED", "card declined", CategoryDeclined)

	tests := []struct {
		name      string
		err       error
		transient bool
		permanent bool
	}{
		{"transient", transient, true, false},
		{"wrapped transient", fmt.Errorf("charge: %w", transient), true, false},
		{"permanent", permanent, false, true},
		{"wrapped permanent", fmt.Errorf("charge: %w", permanent), false, true},
		{"deadline", context.DeadlineExceeded, true, false},
		{"plain", stderrors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}

func TestGatewayError_Error(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewTransientError("wallet", "NETWORK_ERROR", "request failed", CategoryNetworkError, cause)

	assert.Equal(t, "transient gateway error [wallet] NETWORK_ERROR: request failed: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, cause))

	declined := NewPermanentError("card", "05", "do not honor", CategoryDeclined)
	declined.GatewayMessage = "DO NOT HONOR"
	assert.Equal(t, "permanent gateway error [card] 05: do not honor (gateway: DO NOT HONOR)", declined.Error())
}

func TestAsGatewayError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewPermanentError("mobile_money", "INVALID_MSISDN", "bad number", CategoryInvalidAccount))

	gwErr, ok := AsGatewayError(err)
	assert.True(t, ok)
	assert.Equal(t, CategoryInvalidAccount, gwErr.Category)

	_, ok = AsGatewayError(stderrors.New("x"))
	assert.False(t, ok)
}
