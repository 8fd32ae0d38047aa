package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

const investmentColumns = `id, campaign_id, reservation_id, investor_id, payment_method, payer_ref, external_ref,
	idempotency_key, currency, failure_reason, investment_type, status, amount, committed_total,
	frequency, next_charge_date, end_date, last_charged_at, subscription_ref, pending_charge_ref,
	failed_attempts, applied_event_ids, created_at, updated_at, anchor_day, transient_failures`

// externalRefIndex enforces one investment per provider reference
const externalRefIndex = "idx_investments_external_ref"

// InvestmentRepository implements ports.InvestmentRepository
type InvestmentRepository struct {
	pool *pgxpool.Pool
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(pool *pgxpool.Pool) *InvestmentRepository {
	return &InvestmentRepository{pool: pool}
}

// Create inserts a new investment. A second insert with the same
// idempotency key fails with domain.ErrDuplicateKey, one with a provider
// reference already in use with domain.ErrDuplicateExternalRef.
func (r *InvestmentRepository) Create(ctx context.Context, tx ports.DBTX, inv *domain.Investment) error {
	rec := recurringColumns(inv)
	_, err := conn(r.pool, tx).Exec(ctx, `
		INSERT INTO investments (`+investmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		inv.ID, inv.CampaignID, inv.ReservationID, inv.InvestorID, inv.PaymentMethod, inv.PayerRef, inv.ExternalRef,
		inv.IdempotencyKey, inv.Currency, inv.FailureReason, string(inv.Type), string(inv.Status), inv.Amount, inv.CommittedTotal,
		rec.frequency, rec.nextChargeDate, rec.endDate, rec.lastChargedAt, rec.subscriptionRef, rec.pendingChargeRef,
		rec.failedAttempts, appliedIDs(inv), inv.CreatedAt, inv.UpdatedAt, rec.anchorDay, rec.transientFailures,
	)
	if isUniqueViolation(err) {
		return duplicateInvestment(err)
	}
	return mapError("create investment", err, nil)
}

// GetByID retrieves an investment without locking it
func (r *InvestmentRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Investment, error) {
	return r.getOne(ctx, db, "get investment", `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
}

// GetForUpdate retrieves an investment and locks its row for the rest of tx
func (r *InvestmentRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Investment, error) {
	return r.getOne(ctx, tx, "lock investment", `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id)
}

// GetByExternalRef resolves a provider reference to its investment
func (r *InvestmentRepository) GetByExternalRef(ctx context.Context, db ports.DBTX, externalRef string) (*domain.Investment, error) {
	if externalRef == "" {
		return nil, domain.ErrInvestmentNotFound
	}
	return r.getOne(ctx, db, "get investment by external ref", `
		SELECT `+investmentColumns+` FROM investments
		WHERE external_ref = $1 OR pending_charge_ref = $1 OR subscription_ref = $1
		ORDER BY created_at
		LIMIT 1`, externalRef)
}

// GetByIdempotencyKey retrieves the investment created under key
func (r *InvestmentRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, key string) (*domain.Investment, error) {
	return r.getOne(ctx, db, "get investment by idempotency key",
		`SELECT `+investmentColumns+` FROM investments WHERE idempotency_key = $1`, key)
}

// Update writes every mutable column of an investment
func (r *InvestmentRepository) Update(ctx context.Context, tx ports.DBTX, inv *domain.Investment) error {
	rec := recurringColumns(inv)
	tag, err := conn(r.pool, tx).Exec(ctx, `
		UPDATE investments SET
			reservation_id = $2, external_ref = $3, failure_reason = $4, status = $5, committed_total = $6,
			next_charge_date = $7, end_date = $8, last_charged_at = $9, subscription_ref = $10,
			pending_charge_ref = $11, failed_attempts = $12, applied_event_ids = $13, updated_at = $14,
			anchor_day = $15, transient_failures = $16
		WHERE id = $1`,
		inv.ID, inv.ReservationID, inv.ExternalRef, inv.FailureReason, string(inv.Status), inv.CommittedTotal,
		rec.nextChargeDate, rec.endDate, rec.lastChargedAt, rec.subscriptionRef,
		rec.pendingChargeRef, rec.failedAttempts, appliedIDs(inv), inv.UpdatedAt,
		rec.anchorDay, rec.transientFailures,
	)
	if isUniqueViolation(err) {
		return duplicateInvestment(err)
	}
	if err != nil {
		return mapError("update investment", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvestmentNotFound
	}
	return nil
}

// ListByCampaign returns a campaign's investments, newest first
func (r *InvestmentRepository) ListByCampaign(ctx context.Context, db ports.DBTX, campaignID uuid.UUID, limit, offset int32) ([]*domain.Investment, error) {
	return r.list(ctx, db, "list investments by campaign", `
		SELECT `+investmentColumns+` FROM investments
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, campaignID, limit, offset)
}

// ListByInvestor returns an investor's investments, newest first
func (r *InvestmentRepository) ListByInvestor(ctx context.Context, db ports.DBTX, investorID string, limit, offset int32) ([]*domain.Investment, error) {
	return r.list(ctx, db, "list investments by investor", `
		SELECT `+investmentColumns+` FROM investments
		WHERE investor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, investorID, limit, offset)
}

// ListDueRecurring returns active recurring investments whose next charge is due
func (r *InvestmentRepository) ListDueRecurring(ctx context.Context, db ports.DBTX, asOf time.Time, limit int32) ([]*domain.Investment, error) {
	return r.list(ctx, db, "list due recurring investments", `
		SELECT `+investmentColumns+` FROM investments
		WHERE status = 'active'
			AND investment_type = 'recurring'
			AND next_charge_date IS NOT NULL
			AND next_charge_date <= $1
			AND pending_charge_ref = ''
		ORDER BY next_charge_date
		LIMIT $2`, asOf, limit)
}

// ListAwaitingSettlement returns pending investments and recurring charges in
// flight that have not changed since before, oldest first
func (r *InvestmentRepository) ListAwaitingSettlement(ctx context.Context, db ports.DBTX, before time.Time, limit int32) ([]*domain.Investment, error) {
	return r.list(ctx, db, "list investments awaiting settlement", `
		SELECT `+investmentColumns+` FROM investments
		WHERE updated_at < $1
			AND (status = 'pending' OR (status = 'active' AND pending_charge_ref <> ''))
		ORDER BY updated_at
		LIMIT $2`, before, limit)
}

func (r *InvestmentRepository) getOne(ctx context.Context, db ports.DBTX, op, query string, args ...any) (*domain.Investment, error) {
	inv, err := scanInvestment(conn(r.pool, db).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(op, err, domain.ErrInvestmentNotFound)
	}
	return inv, nil
}

func (r *InvestmentRepository) list(ctx context.Context, db ports.DBTX, op, query string, args ...any) ([]*domain.Investment, error) {
	rows, err := conn(r.pool, db).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err, nil)
	}
	defer rows.Close()

	var out []*domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, mapError(op, err, nil)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err, nil)
	}
	return out, nil
}

// recurringRow flattens RecurringState into its table columns
type recurringRow struct {
	frequency         string
	nextChargeDate    *time.Time
	endDate           *time.Time
	lastChargedAt     *time.Time
	subscriptionRef   string
	pendingChargeRef  string
	failedAttempts    int32
	anchorDay         int16
	transientFailures int32
}

func recurringColumns(inv *domain.Investment) recurringRow {
	if inv.Recurring == nil {
		return recurringRow{}
	}
	rs := inv.Recurring
	return recurringRow{
		frequency:         string(rs.Frequency),
		nextChargeDate:    rs.NextChargeDate,
		endDate:           rs.EndDate,
		lastChargedAt:     rs.LastChargedAt,
		subscriptionRef:   rs.SubscriptionRef,
		pendingChargeRef:  rs.PendingChargeRef,
		failedAttempts:    int32(rs.FailedAttempts),
		anchorDay:         int16(rs.AnchorDay),
		transientFailures: int32(rs.TransientFailures),
	}
}

// duplicateInvestment maps a unique violation to the key it collided on
func duplicateInvestment(err error) error {
	if violatedConstraint(err) == externalRefIndex {
		return domain.ErrDuplicateExternalRef
	}
	return domain.ErrDuplicateKey
}

func appliedIDs(inv *domain.Investment) []string {
	if inv.AppliedEventIDs == nil {
		return []string{}
	}
	return inv.AppliedEventIDs
}

func scanInvestment(row rowScanner) (*domain.Investment, error) {
	var (
		inv           domain.Investment
		invType       string
		status        string
		rec           recurringRow
		appliedEvents []string
	)
	err := row.Scan(
		&inv.ID, &inv.CampaignID, &inv.ReservationID, &inv.InvestorID, &inv.PaymentMethod, &inv.PayerRef, &inv.ExternalRef,
		&inv.IdempotencyKey, &inv.Currency, &inv.FailureReason, &invType, &status, &inv.Amount, &inv.CommittedTotal,
		&rec.frequency, &rec.nextChargeDate, &rec.endDate, &rec.lastChargedAt, &rec.subscriptionRef, &rec.pendingChargeRef,
		&rec.failedAttempts, &appliedEvents, &inv.CreatedAt, &inv.UpdatedAt, &rec.anchorDay, &rec.transientFailures,
	)
	if err != nil {
		return nil, err
	}

	inv.Type = domain.InvestmentType(invType)
	inv.Status = domain.InvestmentStatus(status)
	inv.AppliedEventIDs = appliedEvents
	if inv.Type == domain.InvestmentTypeRecurring {
		inv.Recurring = &domain.RecurringState{
			Frequency:         domain.Frequency(rec.frequency),
			NextChargeDate:    utcPtr(rec.nextChargeDate),
			EndDate:           utcPtr(rec.endDate),
			LastChargedAt:     utcPtr(rec.lastChargedAt),
			AnchorDay:         int(rec.anchorDay),
			SubscriptionRef:   rec.subscriptionRef,
			PendingChargeRef:  rec.pendingChargeRef,
			FailedAttempts:    int(rec.failedAttempts),
			TransientFailures: int(rec.transientFailures),
		}
	}
	return &inv, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
