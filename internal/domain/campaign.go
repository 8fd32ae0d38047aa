package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft           CampaignStatus = "draft"
	CampaignStatusPendingApproval CampaignStatus = "pending_approval"
	CampaignStatusActive          CampaignStatus = "active"
	CampaignStatusFunded          CampaignStatus = "funded"
	CampaignStatusCompleted       CampaignStatus = "completed"
	CampaignStatusCancelled       CampaignStatus = "cancelled"
)

// Campaign is a fundraising target. Amounts are integer minor units.
//
// CommittedAmount counts every unit that is either committed or held by an
// open reservation, so capacity checks never admit more than FundingGoal.
// PendingAmount is the held portion; settled capital is CommittedAmount-PendingAmount.
type Campaign struct {
	ID                uuid.UUID
	OwnerID           string
	Title             string
	Currency          string
	FundingGoal       int64
	CommittedAmount   int64
	PendingAmount     int64
	MinimumInvestment int64
	MaximumInvestment *int64
	StartDate         *time.Time
	EndDate           *time.Time
	Status            CampaignStatus
	FundedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SettledAmount returns capital that has been committed, excluding open holds
func (c *Campaign) SettledAmount() int64 {
	return c.CommittedAmount - c.PendingAmount
}

// RemainingCapacity returns how much more can be reserved
func (c *Campaign) RemainingCapacity() int64 {
	if c.CommittedAmount >= c.FundingGoal {
		return 0
	}
	return c.FundingGoal - c.CommittedAmount
}

// IsOpen reports whether the campaign accepts new reservations at the given instant
func (c *Campaign) IsOpen(now time.Time) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// ValidateAmount checks an investment amount and currency against campaign bounds
func (c *Campaign) ValidateAmount(amount int64, currency string) error {
	if amount <= 0 {
		return ErrValidationAmountInvalid
	}
	if currency != "" && !strings.EqualFold(currency, c.Currency) {
		return NewDomainError(ErrorCodeValidationCurrency, "currency does not match campaign").
			WithDetail("expected", c.Currency).
			WithDetail("got", currency)
	}
	if amount < c.MinimumInvestment {
		return NewDomainError(ErrorCodeValidationAmountInvalid, "amount below campaign minimum investment").
			WithDetail("minimum", c.MinimumInvestment)
	}
	if c.MaximumInvestment != nil && amount > *c.MaximumInvestment {
		return NewDomainError(ErrorCodeValidationAmountInvalid, "amount above campaign maximum investment").
			WithDetail("maximum", *c.MaximumInvestment)
	}
	return nil
}

// CanReserve checks whether amount fits the campaign right now
func (c *Campaign) CanReserve(amount int64, now time.Time) error {
	if !c.IsOpen(now) {
		return ErrCampaignNotActive
	}
	if amount <= 0 {
		return ErrValidationAmountInvalid
	}
	if c.CommittedAmount+amount > c.FundingGoal {
		return NewDomainError(ErrorCodeInsufficientCapacity, "amount exceeds remaining campaign capacity").
			WithDetail("remaining", c.RemainingCapacity()).
			WithDetail("requested", amount)
	}
	return nil
}

// GoalReached reports whether settled capital meets the funding goal
func (c *Campaign) GoalReached() bool {
	return c.SettledAmount() >= c.FundingGoal
}

// Validate checks the structural invariants of a new campaign
func (c *Campaign) Validate() error {
	if c.FundingGoal <= 0 {
		return NewValidationError("funding_goal", "funding goal must be positive")
	}
	if len(c.Currency) != 3 {
		return NewValidationError("currency", "currency must be an ISO-4217 code")
	}
	if c.MinimumInvestment <= 0 {
		return NewValidationError("minimum_investment", "minimum investment must be positive")
	}
	if c.MaximumInvestment != nil && *c.MaximumInvestment < c.MinimumInvestment {
		return NewValidationError("maximum_investment", "maximum investment below minimum")
	}
	if c.StartDate != nil && c.EndDate != nil && !c.EndDate.After(*c.StartDate) {
		return NewValidationError("end_date", "end date must be after start date")
	}
	return nil
}

// campaignLifecycle lists allowed status changes made by the campaign owner.
// active->funded is reserved for the funding aggregator.
var campaignLifecycle = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:           {CampaignStatusPendingApproval, CampaignStatusCancelled},
	CampaignStatusPendingApproval: {CampaignStatusActive, CampaignStatusDraft, CampaignStatusCancelled},
	CampaignStatusActive:          {CampaignStatusCompleted, CampaignStatusCancelled},
	CampaignStatusFunded:          {CampaignStatusCompleted},
}

// CanMoveTo reports whether the owner may move the campaign to next
func (c *Campaign) CanMoveTo(next CampaignStatus) bool {
	for _, allowed := range campaignLifecycle[c.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}
