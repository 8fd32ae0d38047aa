package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"go.uber.org/zap"
)

const (
	mobileMoneyAccepted   = "0"
	mobileMoneyDateLayout = "20060102"
	// account references longer than this are truncated by the provider
	maxAccountReference = 12
)

// MobileMoneyProcessor talks to a mobile-money provider. Charges are pushed
// to the payer's handset and always settle asynchronously via webhook. The
// provider has no idempotency support, so duplicate suppression relies on
// the idempotency decorator.
type MobileMoneyProcessor struct {
	client    *providerClient
	shortCode string
	clock     func() time.Time
}

// NewMobileMoneyProcessor creates a mobile-money gateway for the given paybill short code
func NewMobileMoneyProcessor(client *providerClient, shortCode string) *MobileMoneyProcessor {
	return &MobileMoneyProcessor{client: client, shortCode: shortCode, clock: time.Now}
}

// Name returns the payment method tag this gateway serves
func (p *MobileMoneyProcessor) Name() string {
	return p.client.provider
}

type mobileMoneyResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

func (p *MobileMoneyProcessor) checkAccepted(resp mobileMoneyResponse) error {
	if resp.ResponseCode == mobileMoneyAccepted {
		return nil
	}
	gwErr := pkgerrors.NewPermanentError(p.Name(), resp.ResponseCode, "mobile money request rejected", declineCategory(resp.ResponseCode))
	gwErr.GatewayMessage = resp.ResponseDescription
	return gwErr
}

// wholeUnits returns amount in whole major units; mobile money cannot move fractions
func (p *MobileMoneyProcessor) wholeUnits(amount int64, currency string) (string, error) {
	major := ToMajorUnits(amount, currency)
	if !major.IsInteger() {
		return "", pkgerrors.NewPermanentError(p.Name(), CodeInvalidRequest,
			fmt.Sprintf("amount %s %s is not a whole number of units", major.String(), currency), pkgerrors.CategoryInvalidRequest)
	}
	return major.String(), nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
	Timestamp         string `json:"Timestamp"`
}

type stkPushResponse struct {
	mobileMoneyResponse
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	CustomerMessage   string `json:"CustomerMessage"`
}

// Charge sends a payment prompt to the payer's phone. The result is always pending.
func (p *MobileMoneyProcessor) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	amount, err := p.wholeUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	var resp stkPushResponse
	err = p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/mpesa/stkpush/v1/processrequest",
		Body: stkPushRequest{
			BusinessShortCode: p.shortCode,
			TransactionType:   "CustomerPayBillOnline",
			Amount:            amount,
			PartyA:            req.PayerRef,
			PartyB:            p.shortCode,
			PhoneNumber:       req.PayerRef,
			AccountReference:  accountReference(req.Metadata[MetadataInvestmentID]),
			TransactionDesc:   "Investment",
			Timestamp:         p.clock().UTC().Format("20060102150405"),
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := p.checkAccepted(resp.mobileMoneyResponse); err != nil {
		return nil, err
	}

	p.client.logger.Info("Mobile money payment prompt sent",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("merchant_request_id", resp.MerchantRequestID),
	)

	return &ports.ChargeResult{
		ExternalRef: resp.CheckoutRequestID,
		Status:      ports.ChargeStatusPending,
		Message:     resp.CustomerMessage,
	}, nil
}

type standingOrderRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	Frequency         string `json:"Frequency"`
	StartDate         string `json:"StartDate"`
	AccountReference  string `json:"AccountReference"`
}

type standingOrderResponse struct {
	mobileMoneyResponse
	StandingOrderID   string `json:"StandingOrderID"`
	NextExecutionDate string `json:"NextExecutionDate"`
}

// Subscribe registers a standing order
func (p *MobileMoneyProcessor) Subscribe(ctx context.Context, req *ports.SubscribeRequest) (*ports.SubscribeResult, error) {
	amount, err := p.wholeUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	frequency, err := mobileMoneyFrequency(req.Frequency)
	if err != nil {
		return nil, pkgerrors.NewPermanentError(p.Name(), CodeInvalidRequest, err.Error(), pkgerrors.CategoryInvalidRequest)
	}

	var resp standingOrderResponse
	err = p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/mpesa/standingorder/v1/create",
		Body: standingOrderRequest{
			BusinessShortCode: p.shortCode,
			Amount:            amount,
			PartyA:            req.PayerRef,
			Frequency:         frequency,
			StartDate:         req.StartDate.UTC().Format(mobileMoneyDateLayout),
			AccountReference:  accountReference(req.IdempotencyKey),
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := p.checkAccepted(resp.mobileMoneyResponse); err != nil {
		return nil, err
	}

	result := &ports.SubscribeResult{SubscriptionRef: resp.StandingOrderID}
	if resp.NextExecutionDate != "" {
		next, err := time.Parse(mobileMoneyDateLayout, resp.NextExecutionDate)
		if err != nil {
			return nil, pkgerrors.NewTransientError(p.Name(), CodeBadResponse, "invalid NextExecutionDate", pkgerrors.CategorySystemError, err)
		}
		result.NextChargeDate = next
	}
	return result, nil
}

// CancelSubscription cancels a standing order; an unknown order is already gone
func (p *MobileMoneyProcessor) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	var resp mobileMoneyResponse
	err := p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/mpesa/standingorder/v1/cancel",
		Body: map[string]string{
			"BusinessShortCode": p.shortCode,
			"StandingOrderID":   subscriptionRef,
		},
	}, &resp)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return p.checkAccepted(resp)
}

type reversalRequest struct {
	TransactionID  string `json:"TransactionID"`
	Amount         string `json:"Amount"`
	ReceiverParty  string `json:"ReceiverParty"`
	RecieverIdType string `json:"RecieverIdentifierType"`
	Remarks        string `json:"Remarks"`
	Occasion       string `json:"Occasion"`
}

type reversalResponse struct {
	mobileMoneyResponse
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
}

// Refund requests a transaction reversal. Reversals complete asynchronously.
func (p *MobileMoneyProcessor) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResult, error) {
	amount, err := p.wholeUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	remarks := req.Reason
	if remarks == "" {
		remarks = "Investment refund"
	}

	var resp reversalResponse
	err = p.client.do(ctx, apiRequest{
		Method: http.MethodPost,
		Path:   "/mpesa/reversal/v1/request",
		Body: reversalRequest{
			TransactionID:  req.ExternalRef,
			Amount:         amount,
			ReceiverParty:  p.shortCode,
			RecieverIdType: "4",
			Remarks:        remarks,
			Occasion:       req.IdempotencyKey,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := p.checkAccepted(resp.mobileMoneyResponse); err != nil {
		return nil, err
	}
	return &ports.RefundResult{RefundRef: resp.ConversationID, Status: ports.ChargeStatusPending}, nil
}

func mobileMoneyFrequency(f domain.Frequency) (string, error) {
	switch f {
	case domain.FrequencyWeekly:
		return "3", nil
	case domain.FrequencyMonthly:
		return "4", nil
	case domain.FrequencyQuarterly:
		return "6", nil
	case domain.FrequencyYearly:
		return "8", nil
	}
	return "", fmt.Errorf("unsupported frequency %q", f)
}

func accountReference(ref string) string {
	if len(ref) > maxAccountReference {
		return ref[:maxAccountReference]
	}
	return ref
}
