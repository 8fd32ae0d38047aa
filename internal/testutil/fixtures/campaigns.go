package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// CampaignBuilder provides fluent API for building test campaigns.
type CampaignBuilder struct {
	campaign *domain.Campaign
}

// NewCampaign creates an active USD campaign with a goal of 1000 minor units.
func NewCampaign() *CampaignBuilder {
	now := time.Now().UTC()
	return &CampaignBuilder{
		campaign: &domain.Campaign{
			ID:                uuid.New(),
			OwnerID:           "owner-1",
			Title:             "Community Solar",
			Currency:          "USD",
			FundingGoal:       1000,
			MinimumInvestment: 1,
			Status:            domain.CampaignStatusActive,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
}

func (b *CampaignBuilder) WithID(id uuid.UUID) *CampaignBuilder {
	b.campaign.ID = id
	return b
}

func (b *CampaignBuilder) WithGoal(goal int64) *CampaignBuilder {
	b.campaign.FundingGoal = goal
	return b
}

func (b *CampaignBuilder) WithCommitted(committed int64) *CampaignBuilder {
	b.campaign.CommittedAmount = committed
	return b
}

func (b *CampaignBuilder) WithCurrency(currency string) *CampaignBuilder {
	b.campaign.Currency = currency
	return b
}

func (b *CampaignBuilder) WithBounds(min int64, max *int64) *CampaignBuilder {
	b.campaign.MinimumInvestment = min
	b.campaign.MaximumInvestment = max
	return b
}

func (b *CampaignBuilder) WithWindow(start, end *time.Time) *CampaignBuilder {
	b.campaign.StartDate = start
	b.campaign.EndDate = end
	return b
}

func (b *CampaignBuilder) WithStatus(status domain.CampaignStatus) *CampaignBuilder {
	b.campaign.Status = status
	return b
}

func (b *CampaignBuilder) WithOwner(ownerID string) *CampaignBuilder {
	b.campaign.OwnerID = ownerID
	return b
}

func (b *CampaignBuilder) Build() *domain.Campaign {
	return b.campaign
}
