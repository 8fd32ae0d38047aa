package gateway

import (
	"context"
	"time"

	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ResilientGateway bounds every call with an overall deadline, retries
// transient failures with exponential backoff and jitter, and records
// metrics and spans per operation
type ResilientGateway struct {
	next     ports.PaymentGateway
	timeouts *resilience.TimeoutConfig
	backoff  resilience.BackoffStrategy
	attempts int
	tracer   trace.Tracer
	logger   *zap.Logger
}

// ResilienceConfig configures the retry envelope
type ResilienceConfig struct {
	Timeouts    *resilience.TimeoutConfig
	Backoff     resilience.BackoffStrategy
	MaxAttempts int
}

// NewResilientGateway wraps next with timeouts and retries
func NewResilientGateway(next ports.PaymentGateway, cfg ResilienceConfig, logger *zap.Logger) *ResilientGateway {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.DefaultExponentialBackoff()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &ResilientGateway{
		next:     next,
		timeouts: cfg.Timeouts,
		backoff:  cfg.Backoff,
		attempts: cfg.MaxAttempts,
		tracer:   observability.Tracer("funding-service/gateway"),
		logger:   logger,
	}
}

// Name returns the wrapped gateway's name
func (g *ResilientGateway) Name() string {
	return g.next.Name()
}

// Charge charges with retries
func (g *ResilientGateway) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	var result *ports.ChargeResult
	err := g.call(ctx, "charge", func(ctx context.Context) error {
		var err error
		result, err = g.next.Charge(ctx, req)
		return err
	})
	return result, err
}

// Subscribe subscribes with retries
func (g *ResilientGateway) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	var result *ports.SubscribeResult
	err := g.call(ctx, "subscribe", func(ctx context.Context) error {
		var err error
		result, err = g.next.Subscribe(ctx, req)
		return err
	})
	return result, err
}

// CancelSubscription cancels with retries
func (g *ResilientGateway) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	return g.call(ctx, "cancel_subscription", func(ctx context.Context) error {
		return g.next.CancelSubscription(ctx, subscriptionRef)
	})
}

// Refund refunds with retries
func (g *ResilientGateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	var result *ports.RefundResult
	err := g.call(ctx, "refund", func(ctx context.Context) error {
		var err error
		result, err = g.next.Refund(ctx, req)
		return err
	})
	return result, err
}

func (g *ResilientGateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	provider := g.next.Name()
	ctx, span := g.tracer.Start(ctx, "gateway."+operation, trace.WithAttributes(
		attribute.String("gateway.provider", provider),
	))
	defer span.End()

	ctx, cancel := g.timeouts.GatewayContext(ctx)
	defer cancel()

	start := time.Now()
	policy := resilience.RetryPolicy{
		MaxAttempts: g.attempts,
		Backoff:     g.backoff,
		Retriable:   pkgerrors.IsTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			g.logger.Warn("Retrying gateway call",
				zap.String("provider", provider),
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}

	attempts := 0
	err := resilience.Retry(ctx, policy, func(ctx context.Context, attempt int) error {
		attempts = attempt + 1
		attemptCtx, cancel := g.timeouts.AttemptContext(ctx)
		defer cancel()
		return fn(attemptCtx)
	})

	outcome := outcomeOf(err)
	observability.RecordGatewayRequest(provider, operation, outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("gateway.attempts", attempts), attribute.String("gateway.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return err
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case pkgerrors.IsPermanent(err):
		return "permanent_error"
	case pkgerrors.IsTransient(err):
		return "transient_error"
	default:
		return "error"
	}
}
