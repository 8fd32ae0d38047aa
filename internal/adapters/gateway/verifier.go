package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kevin07696/funding-service/internal/config"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/pkg/timeutil"
)

// HMACVerifier checks webhook signatures with a per-provider secret.
// The signature is the hex HMAC-SHA256 of the event's signing payload.
type HMACVerifier struct {
	secrets   ports.SecretStore
	paths     map[string]string
	tolerance time.Duration
	clock     timeutil.Clock
}

// NewHMACVerifier creates a verifier. paths maps provider name to the secret
// path of its webhook signing key. A zero tolerance disables the timestamp check.
func NewHMACVerifier(secrets ports.SecretStore, paths map[string]string, tolerance time.Duration, clock timeutil.Clock) *HMACVerifier {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &HMACVerifier{secrets: secrets, paths: paths, tolerance: tolerance, clock: clock}
}

// WebhookSecretPaths extracts the webhook secret path of each configured provider
func WebhookSecretPaths(providers []config.ProviderConfig) map[string]string {
	paths := make(map[string]string, len(providers))
	for _, p := range providers {
		paths[p.Method] = p.WebhookSecret
	}
	return paths
}

// Verify authenticates event as coming from provider
func (v *HMACVerifier) Verify(ctx context.Context, provider string, event *domain.WebhookEvent) error {
	path, ok := v.paths[provider]
	if !ok {
		return domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "unknown webhook provider").
			WithDetail("provider", provider)
	}

	secret, err := v.secrets.GetSecret(ctx, path)
	if err != nil {
		return fmt.Errorf("load webhook secret for %s: %w", provider, err)
	}

	expected, err := hex.DecodeString(Sign(secret.Value, event))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(event.Signature)
	if err != nil || !hmac.Equal(expected, got) {
		return domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "webhook signature verification failed").
			WithDetail("provider", provider)
	}

	if v.tolerance > 0 {
		age := v.clock.Now().Sub(time.Unix(event.Timestamp, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "webhook timestamp outside tolerance").
				WithDetail("provider", provider)
		}
	}
	return nil
}

// Sign computes the signature a provider attaches to event
func Sign(secret string, event *domain.WebhookEvent) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(event.SigningPayload())
	return hex.EncodeToString(mac.Sum(nil))
}
