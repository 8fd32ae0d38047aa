package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/kevin07696/funding-service/internal/adapters/secrets"
	"github.com/kevin07696/funding-service/internal/config"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier_Verify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := secrets.NewStaticStore(map[string]string{
		"webhooks/card":   "whsec_card",
		"webhooks/paypal": "whsec_paypal",
	})
	verifier := NewHMACVerifier(store, WebhookSecretPaths([]config.ProviderConfig{
		{Method: "card", WebhookSecret: "webhooks/card"},
		{Method: "paypal", WebhookSecret: "webhooks/paypal"},
	}), 5*time.Minute, timeutil.NewFixedClock(now))

	signed := func(secret string, ts time.Time) *domain.WebhookEvent {
		event := &domain.WebhookEvent{
			ID:          "evt_1",
			ExternalRef: "ch_1",
			Type:        domain.WebhookEventCharge,
			Status:      domain.WebhookStatusSucceeded,
			Timestamp:   ts.Unix(),
		}
		event.Signature = Sign(secret, event)
		return event
	}

	tests := []struct {
		name     string
		provider string
		event    func() *domain.WebhookEvent
		wantErr  bool
	}{
		{"valid", "card", func() *domain.WebhookEvent { return signed("whsec_card", now) }, false},
		{"other provider's secret", "card", func() *domain.WebhookEvent { return signed("whsec_paypal", now) }, true},
		{"tampered status", "card", func() *domain.WebhookEvent {
			e := signed("whsec_card", now)
			e.Status = domain.WebhookStatusFailed
			return e
		}, true},
		{"not hex", "card", func() *domain.WebhookEvent {
			e := signed("whsec_card", now)
			e.Signature = "zz"
			return e
		}, true},
		{"stale", "card", func() *domain.WebhookEvent { return signed("whsec_card", now.Add(-time.Hour)) }, true},
		{"unknown provider", "crypto", func() *domain.WebhookEvent { return signed("whsec_card", now) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(context.Background(), tt.provider, tt.event())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHMACVerifier_ZeroToleranceSkipsTimestampCheck(t *testing.T) {
	store := secrets.NewStaticStore(map[string]string{"webhooks/card": "whsec_card"})
	verifier := NewHMACVerifier(store, map[string]string{"card": "webhooks/card"}, 0, nil)

	event := &domain.WebhookEvent{ID: "evt_1", ExternalRef: "ch_1", Type: domain.WebhookEventCharge, Status: domain.WebhookStatusSucceeded, Timestamp: 1}
	event.Signature = Sign("whsec_card", event)

	assert.NoError(t, verifier.Verify(context.Background(), "card", event))
}

func TestHMACVerifier_MissingSecretIsNotASignatureFailure(t *testing.T) {
	verifier := NewHMACVerifier(secrets.NewStaticStore(nil), map[string]string{"card": "webhooks/card"}, 0, nil)

	event := &domain.WebhookEvent{ID: "evt_1", ExternalRef: "ch_1", Signature: "00"}
	err := verifier.Verify(context.Background(), "card", event)

	require.Error(t, err)
	assert.False(t, domain.IsDomainError(err, domain.ErrorCodeSignatureInvalid))
}
