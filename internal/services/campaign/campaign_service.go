package campaign

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/domain"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.uber.org/zap"
)

// campaignService implements the CampaignService port
type campaignService struct {
	txm       domainports.TransactionManager
	campaigns domainports.CampaignRepository
	clock     timeutil.Clock
	logger    *zap.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	txm domainports.TransactionManager,
	campaigns domainports.CampaignRepository,
	clock timeutil.Clock,
	logger *zap.Logger,
) ports.CampaignService {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &campaignService{
		txm:       txm,
		campaigns: campaigns,
		clock:     clock,
		logger:    logger,
	}
}

// CreateCampaign registers a campaign in draft
func (s *campaignService) CreateCampaign(ctx context.Context, req *ports.CreateCampaignRequest) (*domain.Campaign, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.NewValidationError("owner_id", "owner_id is required")
	}

	now := s.clock.Now()
	campaign := &domain.Campaign{
		ID:                uuid.New(),
		OwnerID:           req.OwnerID,
		Title:             req.Title,
		Currency:          strings.ToUpper(req.Currency),
		FundingGoal:       req.FundingGoal,
		MinimumInvestment: req.MinimumInvestment,
		MaximumInvestment: req.MaximumInvestment,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Status:            domain.CampaignStatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if campaign.MinimumInvestment == 0 {
		campaign.MinimumInvestment = 1
	}
	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, nil, campaign); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("owner_id", campaign.OwnerID),
		zap.Int64("funding_goal", campaign.FundingGoal),
		zap.String("currency", campaign.Currency),
	)
	return campaign, nil
}

// GetCampaign retrieves a campaign
func (s *campaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, nil, id)
}

// SubmitCampaign moves a draft to pending approval
func (s *campaignService) SubmitCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.moveTo(ctx, id, domain.CampaignStatusPendingApproval)
}

// ApproveCampaign opens a campaign for investment
func (s *campaignService) ApproveCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.moveTo(ctx, id, domain.CampaignStatusActive)
}

// CompleteCampaign closes an active or funded campaign
func (s *campaignService) CompleteCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.moveTo(ctx, id, domain.CampaignStatusCompleted)
}

// CancelCampaign withdraws a campaign. Open holds settle through the
// ledger as usual; no new reservations are admitted.
func (s *campaignService) CancelCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.moveTo(ctx, id, domain.CampaignStatusCancelled)
}

// moveTo applies an owner-driven status change under the campaign row lock,
// so it cannot race the aggregator flipping the campaign to funded.
func (s *campaignService) moveTo(ctx context.Context, id uuid.UUID, next domain.CampaignStatus) (*domain.Campaign, error) {
	var campaign *domain.Campaign
	err := s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		campaign, err = s.campaigns.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !campaign.CanMoveTo(next) {
			return domain.NewDomainError(domain.ErrorCodeCampaignInvalidLifecycle, "campaign status change not allowed").
				WithDetail("from", string(campaign.Status)).
				WithDetail("to", string(next))
		}
		if err := s.campaigns.UpdateStatus(ctx, tx, id, next); err != nil {
			return err
		}
		campaign.Status = next
		campaign.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Campaign status changed",
		zap.String("campaign_id", id.String()),
		zap.String("status", string(next)),
	)
	return campaign, nil
}
