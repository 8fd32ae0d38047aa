package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

// ReservationRepository implements ports.ReservationRepository
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Create inserts a new reservation
func (r *ReservationRepository) Create(ctx context.Context, tx ports.DBTX, res *domain.Reservation) error {
	_, err := conn(r.pool, tx).Exec(ctx, `
		INSERT INTO reservations (id, campaign_id, investment_id, status, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.CampaignID, res.InvestmentID, string(res.Status), res.Amount, res.CreatedAt, res.UpdatedAt,
	)
	return mapError("create reservation", err, nil)
}

// GetForUpdate retrieves a reservation and locks its row for the rest of tx
func (r *ReservationRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Reservation, error) {
	var (
		res    domain.Reservation
		status string
	)
	err := conn(r.pool, tx).QueryRow(ctx, `
		SELECT id, campaign_id, investment_id, status, amount, created_at, updated_at
		FROM reservations WHERE id = $1 FOR UPDATE`, id,
	).Scan(&res.ID, &res.CampaignID, &res.InvestmentID, &status, &res.Amount, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, mapError("lock reservation", err, domain.ErrReservationNotFound)
	}
	res.Status = domain.ReservationStatus(status)
	return &res, nil
}

// UpdateStatus moves a reservation to a new status
func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status domain.ReservationStatus) error {
	tag, err := conn(r.pool, tx).Exec(ctx,
		`UPDATE reservations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return mapError("update reservation status", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// AttachInvestment links a reservation to the investment that owns it
func (r *ReservationRepository) AttachInvestment(ctx context.Context, tx ports.DBTX, id uuid.UUID, investmentID uuid.UUID) error {
	tag, err := conn(r.pool, tx).Exec(ctx,
		`UPDATE reservations SET investment_id = $2, updated_at = NOW() WHERE id = $1`, id, investmentID)
	if err != nil {
		return mapError("attach reservation", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// SumByStatus totals reservation amounts for a campaign, keyed by status
func (r *ReservationRepository) SumByStatus(ctx context.Context, db ports.DBTX, campaignID uuid.UUID) (map[domain.ReservationStatus]int64, error) {
	rows, err := conn(r.pool, db).Query(ctx, `
		SELECT status, COALESCE(SUM(amount), 0)::BIGINT
		FROM reservations WHERE campaign_id = $1
		GROUP BY status`, campaignID)
	if err != nil {
		return nil, mapError("sum reservations", err, nil)
	}
	defer rows.Close()

	sums := make(map[domain.ReservationStatus]int64)
	for rows.Next() {
		var (
			status string
			total  int64
		)
		if err := rows.Scan(&status, &total); err != nil {
			return nil, mapError("scan reservation sum", err, nil)
		}
		sums[domain.ReservationStatus(status)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate reservation sums", err, nil)
	}
	return sums, nil
}
