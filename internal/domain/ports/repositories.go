package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// Repositories accept an optional DBTX. A nil tx runs against the pool;
// a non-nil tx joins the caller's transaction.

// CampaignRepository persists campaigns
type CampaignRepository interface {
	Create(ctx context.Context, tx DBTX, campaign *domain.Campaign) error
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Campaign, error)
	// GetForUpdate reads a campaign and holds its row lock until tx ends
	GetForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Campaign, error)
	// UpdateFunding writes committed/pending amounts, status and funded timestamp
	UpdateFunding(ctx context.Context, tx DBTX, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status domain.CampaignStatus) error
}

// InvestmentRepository persists ledger records
type InvestmentRepository interface {
	Create(ctx context.Context, tx DBTX, investment *domain.Investment) error
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Investment, error)
	// GetForUpdate reads an investment and holds its row lock until tx ends
	GetForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Investment, error)
	// GetByExternalRef resolves a provider reference: the initial charge ref,
	// a pending recurring charge ref or a subscription ref
	GetByExternalRef(ctx context.Context, db DBTX, externalRef string) (*domain.Investment, error)
	GetByIdempotencyKey(ctx context.Context, db DBTX, key string) (*domain.Investment, error)
	Update(ctx context.Context, tx DBTX, investment *domain.Investment) error
	ListByCampaign(ctx context.Context, db DBTX, campaignID uuid.UUID, limit, offset int32) ([]*domain.Investment, error)
	ListByInvestor(ctx context.Context, db DBTX, investorID string, limit, offset int32) ([]*domain.Investment, error)
	// ListDueRecurring returns active recurring investments with nextChargeDate <= asOf
	ListDueRecurring(ctx context.Context, db DBTX, asOf time.Time, limit int32) ([]*domain.Investment, error)
	// ListAwaitingSettlement returns investments still waiting on the provider
	// that were last updated before the cutoff, oldest first
	ListAwaitingSettlement(ctx context.Context, db DBTX, before time.Time, limit int32) ([]*domain.Investment, error)
}

// ReservationRepository persists capacity holds
type ReservationRepository interface {
	Create(ctx context.Context, tx DBTX, reservation *domain.Reservation) error
	GetForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status domain.ReservationStatus) error
	AttachInvestment(ctx context.Context, tx DBTX, id uuid.UUID, investmentID uuid.UUID) error
	// SumByStatus totals reservation amounts for a campaign, keyed by status
	SumByStatus(ctx context.Context, db DBTX, campaignID uuid.UUID) (map[domain.ReservationStatus]int64, error)
}

// DeadLetterRepository persists webhook events that could not be reconciled
type DeadLetterRepository interface {
	Create(ctx context.Context, db DBTX, letter *domain.DeadLetter) error
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.DeadLetter, error)
	ListUnresolved(ctx context.Context, db DBTX, limit int32) ([]*domain.DeadLetter, error)
	MarkResolved(ctx context.Context, db DBTX, id uuid.UUID, resolvedAt time.Time) error
}
