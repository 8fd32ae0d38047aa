package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

const campaignColumns = `id, owner_id, title, currency, funding_goal, committed_amount, pending_amount,
	minimum_investment, maximum_investment, start_date, end_date, status, funded_at, created_at, updated_at`

// CampaignRepository implements ports.CampaignRepository
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// Create inserts a new campaign
func (r *CampaignRepository) Create(ctx context.Context, tx ports.DBTX, c *domain.Campaign) error {
	_, err := conn(r.pool, tx).Exec(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.OwnerID, c.Title, c.Currency, c.FundingGoal, c.CommittedAmount, c.PendingAmount,
		c.MinimumInvestment, c.MaximumInvestment, c.StartDate, c.EndDate, string(c.Status), c.FundedAt,
		c.CreatedAt, c.UpdatedAt,
	)
	return mapError("create campaign", err, nil)
}

// GetByID retrieves a campaign without locking it
func (r *CampaignRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Campaign, error) {
	row := conn(r.pool, db).QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, mapError("get campaign", err, domain.ErrCampaignNotFound)
	}
	return c, nil
}

// GetForUpdate retrieves a campaign and locks its row for the rest of tx
func (r *CampaignRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Campaign, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, mapError("lock campaign", err, domain.ErrCampaignNotFound)
	}
	return c, nil
}

// UpdateFunding writes the funding counters and any status change they caused
func (r *CampaignRepository) UpdateFunding(ctx context.Context, tx ports.DBTX, c *domain.Campaign) error {
	tag, err := conn(r.pool, tx).Exec(ctx, `
		UPDATE campaigns
		SET committed_amount = $2, pending_amount = $3, status = $4, funded_at = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.CommittedAmount, c.PendingAmount, string(c.Status), c.FundedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapError("update campaign funding", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// UpdateStatus changes the lifecycle status of a campaign
func (r *CampaignRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status domain.CampaignStatus) error {
	tag, err := conn(r.pool, tx).Exec(ctx,
		`UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return mapError("update campaign status", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c      domain.Campaign
		status string
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Currency, &c.FundingGoal, &c.CommittedAmount, &c.PendingAmount,
		&c.MinimumInvestment, &c.MaximumInvestment, &c.StartDate, &c.EndDate, &status, &c.FundedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CampaignStatus(status)
	return &c, nil
}
