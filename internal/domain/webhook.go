package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookEventType classifies inbound provider events
type WebhookEventType string

const (
	// WebhookEventCharge reports the initial charge of an investment
	WebhookEventCharge WebhookEventType = "charge"
	// WebhookEventRecurringCharge reports a scheduled charge of a recurring plan
	WebhookEventRecurringCharge WebhookEventType = "recurring_charge"
	WebhookEventRefund          WebhookEventType = "refund"
)

// WebhookStatus is the outcome reported by the provider
type WebhookStatus string

const (
	WebhookStatusSucceeded WebhookStatus = "succeeded"
	WebhookStatusFailed    WebhookStatus = "failed"
	WebhookStatusPending   WebhookStatus = "pending"
)

// WebhookEvent is an asynchronous provider confirmation
type WebhookEvent struct {
	ID           string           `json:"event_id"`
	ExternalRef  string           `json:"external_ref"`
	// InvestmentID echoes the investment id sent to the provider as charge metadata
	InvestmentID string           `json:"investment_id,omitempty"`
	Type         WebhookEventType `json:"type"`
	Status       WebhookStatus    `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	Timestamp    int64            `json:"timestamp"`
	Signature    string           `json:"signature"`
}

// SigningPayload is the canonical byte string covered by the event signature
func (e *WebhookEvent) SigningPayload() []byte {
	payload := fmt.Sprintf("%s.%s.%s.%s.%d", e.ID, e.ExternalRef, e.Type, e.Status, e.Timestamp)
	if e.InvestmentID != "" {
		payload += "." + e.InvestmentID
	}
	return []byte(payload)
}

// Validate checks that the event carries the fields reconciliation needs
func (e *WebhookEvent) Validate() error {
	if e.ID == "" {
		return NewValidationError("event_id", "event_id is required")
	}
	if e.ExternalRef == "" {
		return NewValidationError("external_ref", "external_ref is required")
	}
	if e.Signature == "" {
		return ErrSignatureInvalid
	}
	return nil
}

// LedgerEventFor maps a provider event onto the ledger event it drives.
// ok is false for events that carry no state change (e.g. pending).
func (e *WebhookEvent) LedgerEventFor() (LedgerEvent, bool) {
	switch e.Type {
	case WebhookEventCharge:
		switch e.Status {
		case WebhookStatusSucceeded:
			return EventSucceeded, true
		case WebhookStatusFailed:
			return EventFailed, true
		}
	case WebhookEventRecurringCharge:
		switch e.Status {
		case WebhookStatusSucceeded:
			return EventChargeSucceeded, true
		case WebhookStatusFailed:
			return EventChargeFailed, true
		}
	case WebhookEventRefund:
		if e.Status == WebhookStatusSucceeded {
			return EventRefund, true
		}
	}
	return "", false
}

// DeadLetterReason explains why an event was parked
type DeadLetterReason string

const (
	DeadLetterUnresolvedRef     DeadLetterReason = "unresolved_external_ref"
	DeadLetterInvalidTransition DeadLetterReason = "invalid_transition"
	DeadLetterUnsupportedEvent  DeadLetterReason = "unsupported_event"
)

// DeadLetter is a webhook event parked for manual reconciliation
type DeadLetter struct {
	ID         uuid.UUID
	Provider   string
	Event      WebhookEvent
	Reason     DeadLetterReason
	Detail     string
	ResolvedAt *time.Time
	CreatedAt  time.Time
}
