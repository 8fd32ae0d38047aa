package ports

import (
	"context"
	"time"

	"github.com/kevin07696/funding-service/internal/domain"
)

// ChargeStatus is the synchronous outcome of a charge
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// ChargeRequest is sent to a provider. Amount is in integer minor units.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	PayerRef       string
	IdempotencyKey string
	Metadata       map[string]string
}

// ChargeResult is the provider's answer to a charge
type ChargeResult struct {
	ExternalRef string       `json:"external_ref"`
	Status      ChargeStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
}

// SubscribeRequest registers a recurring mandate with a provider
type SubscribeRequest struct {
	Amount    int64
	Currency  string
	Frequency domain.Frequency
	PayerRef  string
	StartDate time.Time

	// IdempotencyKey, when set, deduplicates mandate creation
	IdempotencyKey string
}

// SubscribeResult identifies the provider mandate
type SubscribeResult struct {
	SubscriptionRef string
	NextChargeDate  time.Time
}

// RefundRequest returns captured funds
type RefundRequest struct {
	ExternalRef    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

// RefundResult is the provider's answer to a refund
type RefundResult struct {
	RefundRef string       `json:"refund_ref"`
	Status    ChargeStatus `json:"status"`
}

// PaymentGateway is the capability set every provider variant implements.
// Errors are *pkgerrors.GatewayError classified as transient or permanent.
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResult, error)
	CancelSubscription(ctx context.Context, subscriptionRef string) error
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// GatewayResolver maps a payment method tag to its configured gateway
type GatewayResolver interface {
	Resolve(paymentMethod string) (PaymentGateway, error)
}

// WebhookVerifier authenticates inbound provider events
type WebhookVerifier interface {
	Verify(ctx context.Context, provider string, event *domain.WebhookEvent) error
}
