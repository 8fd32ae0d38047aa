package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"go.uber.org/zap"
)

const cardIdempotencyHeader = "Idempotency-Key"

// CardProcessor talks to a card acquirer that takes amounts in minor units
// and supports provider-side idempotency keys
type CardProcessor struct {
	client *providerClient
	logger *zap.Logger
}

// NewCardProcessor creates a card processor gateway
func NewCardProcessor(client *providerClient) *CardProcessor {
	return &CardProcessor{client: client, logger: client.logger}
}

// Name returns the payment method tag this gateway serves
func (p *CardProcessor) Name() string {
	return p.client.provider
}

type cardChargeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Source      string            `json:"source"`
	Capture     bool              `json:"capture"`
	Mandate     string            `json:"mandate,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type cardChargeResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}

// Charge creates and captures a card charge
func (p *CardProcessor) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	body := cardChargeRequest{
		Amount:   req.Amount,
		Currency: strings.ToLower(req.Currency),
		Source:   req.PayerRef,
		Capture:  true,
		Mandate:  req.Metadata[MetadataSubscriptionRef],
		Metadata: req.Metadata,
	}

	var resp cardChargeResponse
	err := p.client.do(ctx, apiRequest{
		Method:            http.MethodPost,
		Path:              "/v1/charges",
		Body:              body,
		IdempotencyHeader: cardIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "succeeded":
		return &ports.ChargeResult{ExternalRef: resp.ID, Status: ports.ChargeStatusSucceeded}, nil
	case "pending", "processing":
		return &ports.ChargeResult{ExternalRef: resp.ID, Status: ports.ChargeStatusPending}, nil
	case "failed":
		p.logger.Info("Card charge declined",
			zap.String("charge_id", resp.ID),
			zap.String("failure_code", resp.FailureCode),
		)
		gwErr := pkgerrors.NewPermanentError(p.Name(), CodeDeclined, "card charge declined", declineCategory(resp.FailureCode))
		gwErr.GatewayMessage = resp.FailureMessage
		return nil, gwErr
	default:
		return nil, pkgerrors.NewTransientError(p.Name(), CodeBadResponse,
			fmt.Sprintf("unexpected charge status %q", resp.Status), pkgerrors.CategorySystemError, nil)
	}
}

type cardSubscriptionRequest struct {
	Customer      string `json:"customer"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	StartDate     int64  `json:"start_date"`
	Collection    string `json:"collection_method"`
}

type cardSubscriptionResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	NextChargeDate int64  `json:"next_charge_date"`
}

// Subscribe registers a merchant-initiated recurring mandate
func (p *CardProcessor) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	interval, count, err := cardInterval(req.Frequency)
	if err != nil {
		return nil, pkgerrors.NewPermanentError(p.Name(), CodeInvalidRequest, err.Error(), pkgerrors.CategoryInvalidRequest)
	}

	var resp cardSubscriptionResponse
	err = p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/v1/subscriptions",
		Body: cardSubscriptionRequest{
			Customer:      req.PayerRef,
			Amount:        req.Amount,
			Currency:      strings.ToLower(req.Currency),
			Interval:      interval,
			IntervalCount: count,
			StartDate:     req.StartDate.Unix(),
			Collection:    "merchant_initiated",
		},
		IdempotencyHeader: cardIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &ports.SubscribeResult{
		SubscriptionRef: resp.ID,
		NextChargeDate:  time.Unix(resp.NextChargeDate, 0).UTC(),
	}, nil
}

// CancelSubscription cancels a mandate; an unknown mandate is already gone
func (p *CardProcessor) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	err := p.client.do(ctx, apiRequest{
		Method: http.MethodDelete,
		Path:   "/v1/subscriptions/" + url.PathEscape(subscriptionRef),
	}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type cardRefundRequest struct {
	Charge string `json:"charge"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type cardRefundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund returns captured funds of a charge
func (p *CardProcessor) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	var resp cardRefundResponse
	err := p.client.do(ctx, apiRequest{
		Method:            http.MethodPost,
		Path:              "/v1/refunds",
		Body:              cardRefundRequest{Charge: req.ExternalRef, Amount: req.Amount, Reason: req.Reason},
		IdempotencyHeader: cardIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.RefundResult{RefundRef: resp.ID, Status: refundStatus(resp.Status)}, nil
}

func cardInterval(f domain.Frequency) (string, int, error) {
	switch f {
	case domain.FrequencyWeekly:
		return "week", 1, nil
	case domain.FrequencyMonthly:
		return "month", 1, nil
	case domain.FrequencyQuarterly:
		return "month", 3, nil
	case domain.FrequencyYearly:
		return "year", 1, nil
	}
	return "", 0, fmt.Errorf("unsupported frequency %q", f)
}

// refundStatus normalizes provider refund states
func refundStatus(status string) ports.ChargeStatus {
	switch strings.ToLower(status) {
	case "succeeded", "completed":
		return ports.ChargeStatusSucceeded
	case "failed", "canceled", "cancelled":
		return ports.ChargeStatusFailed
	default:
		return ports.ChargeStatusPending
	}
}
