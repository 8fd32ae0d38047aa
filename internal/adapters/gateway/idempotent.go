package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"go.uber.org/zap"
)

// IdempotentGateway guarantees that one idempotency key produces at most one
// provider charge, refund or mandate, whatever the provider itself supports.
// Completed results are replayed; a key still in flight fails transiently.
type IdempotentGateway struct {
	next   ports.PaymentGateway
	store  ports.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentGateway wraps next with key-based deduplication
func NewIdempotentGateway(next ports.PaymentGateway, store ports.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentGateway {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &IdempotentGateway{next: next, store: store, ttl: ttl, logger: logger}
}

// Name returns the wrapped gateway's name
func (g *IdempotentGateway) Name() string {
	return g.next.Name()
}

// Charge charges at most once per idempotency key
func (g *IdempotentGateway) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.NewPermanentError(g.Name(), CodeInvalidRequest, "idempotency key is required", pkgerrors.CategoryInvalidRequest)
	}
	var result ports.ChargeResult
	err := g.once(ctx, "charge", req.IdempotencyKey, &result, func(ctx context.Context) (interface{}, error) {
		return g.next.Charge(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe creates at most one mandate per idempotency key; requests without a key pass through
func (g *IdempotentGateway) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	if req.IdempotencyKey == "" {
		return g.next.Subscribe(ctx, req)
	}
	var result ports.SubscribeResult
	err := g.once(ctx, "subscribe", req.IdempotencyKey, &result, func(ctx context.Context) (interface{}, error) {
		return g.next.Subscribe(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelSubscription is naturally idempotent
func (g *IdempotentGateway) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	return g.next.CancelSubscription(ctx, subscriptionRef)
}

// Refund refunds at most once per idempotency key
func (g *IdempotentGateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.NewPermanentError(g.Name(), CodeInvalidRequest, "idempotency key is required", pkgerrors.CategoryInvalidRequest)
	}
	var result ports.RefundResult
	err := g.once(ctx, "refund", req.IdempotencyKey, &result, func(ctx context.Context) (interface{}, error) {
		return g.next.Refund(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// once runs call unless key already completed, in which case the stored
// result is decoded into out
func (g *IdempotentGateway) once(ctx context.Context, operation, idemKey string, out interface{}, call func(ctx context.Context) (interface{}, error)) error {
	key := g.Name() + ":" + operation + ":" + idemKey

	stored, acquired, err := g.store.Acquire(ctx, key, g.ttl)
	if err != nil {
		return pkgerrors.NewTransientError(g.Name(), CodeServerError, "idempotency store unavailable", pkgerrors.CategorySystemError, err)
	}
	if !acquired {
		if stored == nil {
			return pkgerrors.NewTransientError(g.Name(), CodeInFlight, "a call with this idempotency key is in flight", pkgerrors.CategorySystemError, nil)
		}
		g.logger.Debug("Replaying stored gateway result",
			zap.String("provider", g.Name()),
			zap.String("operation", operation),
			zap.String("idempotency_key", idemKey),
		)
		return json.Unmarshal(stored, out)
	}

	result, err := call(ctx)
	if err != nil {
		if abandonErr := g.store.Abandon(context.WithoutCancel(ctx), key); abandonErr != nil {
			g.logger.Error("Failed to release idempotency key",
				zap.String("key", key),
				zap.Error(abandonErr),
			)
		}
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := g.store.Complete(context.WithoutCancel(ctx), key, raw, g.ttl); err != nil {
		// The in-flight marker stays until it expires, which still blocks duplicates.
		g.logger.Error("Failed to store gateway result",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return json.Unmarshal(raw, out)
}
