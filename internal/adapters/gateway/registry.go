// Package gateway implements the payment provider adapters: card, wallet and
// mobile-money processors behind one capability set, wrapped with retries,
// circuit breaking and key-based charge deduplication.
package gateway

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/funding-service/internal/config"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/httpclient"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Metadata keys understood by the provider adapters
const (
	MetadataInvestmentID    = "investment_id"
	MetadataCampaignID      = "campaign_id"
	MetadataSubscriptionRef = "subscription_ref"
)

// Registry resolves payment method tags to configured gateways
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]ports.PaymentGateway
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]ports.PaymentGateway)}
}

// Register binds a payment method to a gateway
func (r *Registry) Register(method string, gw ports.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[method] = gw
}

// Resolve returns the gateway for paymentMethod
func (r *Registry) Resolve(paymentMethod string) (ports.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[paymentMethod]
	if !ok {
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnknown, "no gateway configured for payment method", nil).
			WithDetail("payment_method", paymentMethod)
	}
	return gw, nil
}

// Methods lists registered payment methods in sorted order
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.gateways))
	for m := range r.gateways {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Dependencies are shared by every gateway built from the provider file
type Dependencies struct {
	Secrets        ports.SecretStore
	Idempotency    ports.IdempotencyStore
	IdempotencyTTL time.Duration
	Timeouts       *resilience.TimeoutConfig
	MaxAttempts    int
	Logger         *zap.Logger
}

// BuildRegistry constructs a gateway per configured provider. Each gateway is
// layered as idempotency -> retries/timeouts -> provider client.
func BuildRegistry(providers []config.ProviderConfig, deps Dependencies) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Idempotency == nil {
		return nil, fmt.Errorf("gateway registry requires an idempotency store")
	}

	registry := NewRegistry()
	for _, p := range providers {
		gw, err := buildProvider(p, deps)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Method, err)
		}
		wrapped := NewIdempotentGateway(
			NewResilientGateway(gw, ResilienceConfig{Timeouts: deps.Timeouts, MaxAttempts: deps.MaxAttempts}, deps.Logger),
			deps.Idempotency, deps.IdempotencyTTL, deps.Logger,
		)
		registry.Register(p.Method, wrapped)

		deps.Logger.Info("Payment gateway registered",
			zap.String("method", p.Method),
			zap.String("kind", string(p.Kind)),
			zap.Float64("requests_per_second", p.RequestsPerSecond),
		)
	}
	return registry, nil
}

func buildProvider(p config.ProviderConfig, deps Dependencies) (ports.PaymentGateway, error) {
	logger := deps.Logger.With(zap.String("provider", p.Method))

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.IsFailure = pkgerrors.IsTransient
	breaker := resilience.NewCircuitBreaker(breakerCfg)
	breaker.OnStateChange(func(from, to resilience.CircuitState) {
		observability.SetGatewayCircuitState(p.Method, int(to))
		logger.Warn("Gateway circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	client := newProviderClient(clientConfig{
		Provider:     p.Method,
		BaseURL:      p.BaseURL,
		APIKeySecret: p.APIKeySecret,
		HTTPClient:   httpclient.New(httpclient.ProviderConfig(), p.Timeout),
		Limiter:      rate.NewLimiter(rate.Limit(p.RequestsPerSecond), p.Burst),
		Breaker:      breaker,
		Secrets:      deps.Secrets,
		Logger:       logger,
	})

	switch p.Kind {
	case config.ProviderKindCard:
		return NewCardProcessor(client), nil
	case config.ProviderKindWallet:
		return NewWalletProcessor(client), nil
	case config.ProviderKindMobileMoney:
		if p.ShortCode == "" {
			return nil, fmt.Errorf("mobile money provider requires short_code")
		}
		return NewMobileMoneyProcessor(client, p.ShortCode), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", p.Kind)
	}
}
