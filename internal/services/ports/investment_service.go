package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// InvestRequest contains parameters for a new investment
type InvestRequest struct {
	CampaignID     uuid.UUID
	InvestorID     string
	PaymentMethod  string
	PayerRef       string
	Currency       string
	Amount         int64
	Type           domain.InvestmentType
	Frequency      domain.Frequency
	EndDate        *time.Time
	IdempotencyKey string
}

// ApplyEventRequest drives one ledger transition
type ApplyEventRequest struct {
	InvestmentID uuid.UUID
	Event        domain.LedgerEvent
	// EventID is the provider event id; empty for internally driven transitions
	EventID string
	Reason  string
	// ExternalRef is the provider reference the event reported. It is recorded
	// on an initial charge that settles before its reference was stored.
	ExternalRef string
}

// ApplyResult reports what a ledger transition did
type ApplyResult struct {
	Investment *domain.Investment
	Transition domain.Transition
	// Duplicate is true when EventID had already been applied or the
	// investment already reflected the event's outcome
	Duplicate bool
}

// ChargeOutcome is the result of one scheduled recurring charge
type ChargeOutcome string

const (
	ChargeOutcomeSucceeded ChargeOutcome = "succeeded"
	ChargeOutcomePending   ChargeOutcome = "pending"
	ChargeOutcomeFailed    ChargeOutcome = "failed"
	ChargeOutcomeDefaulted ChargeOutcome = "defaulted"
	ChargeOutcomeCancelled ChargeOutcome = "cancelled"
	ChargeOutcomeSkipped   ChargeOutcome = "skipped"
)

// LedgerService defines the port for investment operations
type LedgerService interface {
	// Invest reserves capacity, records a pending investment and charges the investor
	Invest(ctx context.Context, req *InvestRequest) (*domain.Investment, error)

	// GetInvestment retrieves an investment
	GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error)

	// FindByExternalRef resolves a provider reference to its investment
	FindByExternalRef(ctx context.Context, externalRef string) (*domain.Investment, error)

	// ListByCampaign lists investments in a campaign
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int32) ([]*domain.Investment, error)

	// ListByInvestor lists investments made by an investor
	ListByInvestor(ctx context.Context, investorID string, limit, offset int32) ([]*domain.Investment, error)

	// Apply performs a ledger transition and its funding side effect atomically
	Apply(ctx context.Context, req *ApplyEventRequest) (*ApplyResult, error)

	// CancelRecurring stops a recurring plan at the investor's request
	CancelRecurring(ctx context.Context, id uuid.UUID, reason string) (*domain.Investment, error)

	// Refund returns a completed one-time investment to the investor
	Refund(ctx context.Context, id uuid.UUID, reason string) (*domain.Investment, error)

	// ProcessDueCharge attempts the scheduled charge of a recurring investment
	ProcessDueCharge(ctx context.Context, id uuid.UUID, now time.Time) (ChargeOutcome, error)

	// ListDueRecurring returns recurring investments due at asOf
	ListDueRecurring(ctx context.Context, asOf time.Time, limit int32) ([]*domain.Investment, error)

	// ListAwaitingSettlement returns investments holding capacity for a
	// payment the provider has not settled since before
	ListAwaitingSettlement(ctx context.Context, before time.Time, limit int32) ([]*domain.Investment, error)

	// ExpireStale gives up on a payment the provider has not settled since
	// before and releases its hold. It reports whether anything changed.
	ExpireStale(ctx context.Context, id uuid.UUID, before time.Time) (bool, error)
}
