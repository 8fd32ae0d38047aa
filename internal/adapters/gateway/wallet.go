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
)

const walletIdempotencyHeader = "PayPal-Request-Id"

// WalletProcessor talks to a wallet provider that takes decimal amounts in
// major units and models payments as orders
type WalletProcessor struct {
	client *providerClient
}

// NewWalletProcessor creates a wallet processor gateway
func NewWalletProcessor(client *providerClient) *WalletProcessor {
	return &WalletProcessor{client: client}
}

// Name returns the payment method tag this gateway serves
func (p *WalletProcessor) Name() string {
	return p.client.provider
}

type walletMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type walletPurchaseUnit struct {
	ReferenceID string      `json:"reference_id,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	Amount      walletMoney `json:"amount"`
}

type walletOrderRequest struct {
	Intent        string               `json:"intent"`
	Payer         walletPayer          `json:"payer"`
	PurchaseUnits []walletPurchaseUnit `json:"purchase_units"`
	BillingAgent  string               `json:"billing_agreement_id,omitempty"`
}

type walletPayer struct {
	PayerID string `json:"payer_id"`
}

type walletOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func money(amount int64, currency string) walletMoney {
	return walletMoney{
		CurrencyCode: strings.ToUpper(currency),
		Value:        FormatMajorUnits(amount, currency),
	}
}

// Charge creates a capture-intent order against the payer's wallet
func (p *WalletProcessor) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	body := walletOrderRequest{
		Intent: "CAPTURE",
		Payer:  walletPayer{PayerID: req.PayerRef},
		PurchaseUnits: []walletPurchaseUnit{{
			ReferenceID: req.IdempotencyKey,
			CustomID:    req.Metadata[MetadataInvestmentID],
			Amount:      money(req.Amount, req.Currency),
		}},
		BillingAgent: req.Metadata[MetadataSubscriptionRef],
	}

	var resp walletOrderResponse
	err := p.client.do(ctx, apiRequest{
		Method:            http.MethodPost,
		Path:              "/v2/checkout/orders",
		Body:              body,
		IdempotencyHeader: walletIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "COMPLETED":
		return &ports.ChargeResult{ExternalRef: resp.ID, Status: ports.ChargeStatusSucceeded}, nil
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return &ports.ChargeResult{ExternalRef: resp.ID, Status: ports.ChargeStatusPending}, nil
	case "VOIDED":
		return nil, pkgerrors.NewPermanentError(p.Name(), CodeDeclined, "wallet order voided", pkgerrors.CategoryDeclined)
	default:
		return nil, pkgerrors.NewTransientError(p.Name(), CodeBadResponse,
			fmt.Sprintf("unexpected order status %q", resp.Status), pkgerrors.CategorySystemError, nil)
	}
}

type walletFrequency struct {
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
}

type walletBillingCycle struct {
	Frequency     walletFrequency `json:"frequency"`
	TenureType    string          `json:"tenure_type"`
	Sequence      int             `json:"sequence"`
	TotalCycles   int             `json:"total_cycles"`
	PricingScheme struct {
		FixedPrice walletMoney `json:"fixed_price"`
	} `json:"pricing_scheme"`
}

type walletSubscriptionRequest struct {
	Plan struct {
		BillingCycles []walletBillingCycle `json:"billing_cycles"`
	} `json:"plan"`
	Subscriber walletPayer `json:"subscriber"`
	StartTime  string      `json:"start_time"`
}

type walletSubscriptionResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	BillingInfo struct {
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

// Subscribe creates a billing agreement charged on demand by the scheduler
func (p *WalletProcessor) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	unit, count, err := walletInterval(req.Frequency)
	if err != nil {
		return nil, pkgerrors.NewPermanentError(p.Name(), CodeInvalidRequest, err.Error(), pkgerrors.CategoryInvalidRequest)
	}

	cycle := walletBillingCycle{
		Frequency:  walletFrequency{IntervalUnit: unit, IntervalCount: count},
		TenureType: "REGULAR",
		Sequence:   1,
	}
	cycle.PricingScheme.FixedPrice = money(req.Amount, req.Currency)

	var body walletSubscriptionRequest
	body.Plan.BillingCycles = []walletBillingCycle{cycle}
	body.Subscriber = walletPayer{PayerID: req.PayerRef}
	body.StartTime = req.StartDate.UTC().Format(time.RFC3339)

	var resp walletSubscriptionResponse
	err = p.client.do(ctx, apiRequest{
		Method:            http.MethodPost,
		Path:              "/v1/billing/subscriptions",
		Body:              body,
		IdempotencyHeader: walletIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}

	result := &ports.SubscribeResult{SubscriptionRef: resp.ID}
	if resp.BillingInfo.NextBillingTime != "" {
		next, err := time.Parse(time.RFC3339, resp.BillingInfo.NextBillingTime)
		if err != nil {
			return nil, pkgerrors.NewTransientError(p.Name(), CodeBadResponse, "invalid next_billing_time", pkgerrors.CategorySystemError, err)
		}
		result.NextChargeDate = next.UTC()
	}
	return result, nil
}

// CancelSubscription cancels a billing agreement; an unknown agreement is already gone
func (p *WalletProcessor) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	err := p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/v1/billing/subscriptions/" + url.PathEscape(subscriptionRef) + "/cancel",
		Body:   map[string]string{"reason": "investor cancelled recurring investment"},
	}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type walletRefundRequest struct {
	Amount      walletMoney `json:"amount"`
	NoteToPayer string      `json:"note_to_payer,omitempty"`
}

// Refund refunds a captured order
func (p *WalletProcessor) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	var resp walletOrderResponse
	err := p.client.do(ctx, apiRequest{
		Method:            http.MethodPost,
		Path:              "/v2/payments/captures/" + url.PathEscape(req.ExternalRef) + "/refund",
		Body:              walletRefundRequest{Amount: money(req.Amount, req.Currency), NoteToPayer: req.Reason},
		IdempotencyHeader: walletIdempotencyHeader,
		IdempotencyKey:    req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.RefundResult{RefundRef: resp.ID, Status: refundStatus(resp.Status)}, nil
}

func walletInterval(f domain.Frequency) (string, int, error) {
	switch f {
	case domain.FrequencyWeekly:
		return "WEEK", 1, nil
	case domain.FrequencyMonthly:
		return "MONTH", 1, nil
	case domain.FrequencyQuarterly:
		return "MONTH", 3, nil
	case domain.FrequencyYearly:
		return "YEAR", 1, nil
	}
	return "", 0, fmt.Errorf("unsupported frequency %q", f)
}
