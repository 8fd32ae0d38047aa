package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// CreateCampaignRequest contains parameters for creating a campaign
type CreateCampaignRequest struct {
	OwnerID           string
	Title             string
	Currency          string
	FundingGoal       int64
	MinimumInvestment int64
	MaximumInvestment *int64
	StartDate         *time.Time
	EndDate           *time.Time
}

// CampaignService defines the port for campaign lifecycle operations.
// Funding amounts are never written here; see the funding aggregator.
type CampaignService interface {
	// CreateCampaign registers a campaign in draft
	CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*domain.Campaign, error)

	// GetCampaign retrieves a campaign
	GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// SubmitCampaign moves a draft to pending approval
	SubmitCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// ApproveCampaign opens a campaign for investment
	ApproveCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// CompleteCampaign closes an active or funded campaign
	CompleteCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// CancelCampaign withdraws a campaign that has not completed
	CancelCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
}
