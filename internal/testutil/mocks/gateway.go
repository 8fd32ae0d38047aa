// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"

	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockPaymentGateway mocks ports.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
	ProviderName string
}

func (m *MockPaymentGateway) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockPaymentGateway) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ChargeResult), args.Error(1)
}

func (m *MockPaymentGateway) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SubscribeResult), args.Error(1)
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	args := m.Called(ctx, subscriptionRef)
	return args.Error(0)
}

func (m *MockPaymentGateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RefundResult), args.Error(1)
}

// StaticResolver resolves every payment method in its map
type StaticResolver map[string]ports.PaymentGateway

func (r StaticResolver) Resolve(paymentMethod string) (ports.PaymentGateway, error) {
	gw, ok := r[paymentMethod]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return gw, nil
}

// MockWebhookVerifier mocks ports.WebhookVerifier
type MockWebhookVerifier struct {
	mock.Mock
}

func (m *MockWebhookVerifier) Verify(ctx context.Context, provider string, event *domain.WebhookEvent) error {
	args := m.Called(ctx, provider, event)
	return args.Error(0)
}
