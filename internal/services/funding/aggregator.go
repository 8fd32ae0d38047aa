// Package funding owns campaign capacity: reservations against the funding
// goal and their commit, release and reversal.
package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Aggregator is the only writer of a campaign's committed and pending amounts.
// Every operation locks the campaign row, so operations on one campaign are
// linearizable while different campaigns proceed in parallel. The *Tx
// variants join a caller's transaction so that capacity changes persist
// atomically with the caller's ledger writes.
type Aggregator struct {
	txm          ports.TransactionManager
	campaigns    ports.CampaignRepository
	reservations ports.ReservationRepository
	notifier     ports.Notifier
	clock        timeutil.Clock
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewAggregator creates a funding aggregator
func NewAggregator(
	txm ports.TransactionManager,
	campaigns ports.CampaignRepository,
	reservations ports.ReservationRepository,
	notifier ports.Notifier,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Aggregator {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Aggregator{
		txm:          txm,
		campaigns:    campaigns,
		reservations: reservations,
		notifier:     notifier,
		clock:        clock,
		tracer:       observability.Tracer("funding-service/funding"),
		logger:       logger,
	}
}

// Settlement reports the campaign state after a commit, release or reversal
type Settlement struct {
	Campaign *domain.Campaign
	// Applied is false when the call was a no-op for this token
	Applied bool
	// Funded is true only for the commit that moved the campaign to funded
	Funded bool
}

// Reserve holds amount against the campaign's remaining capacity
func (a *Aggregator) Reserve(ctx context.Context, campaignID uuid.UUID, amount int64, currency string) (*domain.Reservation, error) {
	var reservation *domain.Reservation
	err := a.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		reservation, err = a.ReserveTx(ctx, tx, campaignID, amount, currency)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// ReserveTx is Reserve inside the caller's transaction. An empty currency
// skips the currency check.
func (a *Aggregator) ReserveTx(ctx context.Context, tx ports.DBTX, campaignID uuid.UUID, amount int64, currency string) (*domain.Reservation, error) {
	ctx, span := a.tracer.Start(ctx, "funding.reserve", trace.WithAttributes(
		attribute.String("campaign.id", campaignID.String()),
		attribute.Int64("amount", amount),
	))
	defer span.End()

	campaign, err := a.campaigns.GetForUpdate(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	if err := a.admit(campaign, amount, currency, now); err != nil {
		observability.RecordReservation(rejectionLabel(err))
		span.RecordError(err)
		return nil, err
	}

	campaign.CommittedAmount += amount
	campaign.PendingAmount += amount
	campaign.UpdatedAt = now
	if err := a.campaigns.UpdateFunding(ctx, tx, campaign); err != nil {
		return nil, err
	}

	reservation := &domain.Reservation{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Status:     domain.ReservationStatusHeld,
		Amount:     amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.reservations.Create(ctx, tx, reservation); err != nil {
		return nil, err
	}

	observability.RecordReservation("accepted")
	a.logger.Debug("Capacity reserved",
		zap.String("campaign_id", campaignID.String()),
		zap.String("reservation_id", reservation.ID.String()),
		zap.Int64("amount", amount),
		zap.Int64("committed_amount", campaign.CommittedAmount),
	)
	return reservation, nil
}

func (a *Aggregator) admit(campaign *domain.Campaign, amount int64, currency string, now time.Time) error {
	if amount <= 0 {
		return domain.ErrValidationAmountInvalid
	}
	if !campaign.IsOpen(now) {
		return domain.NewDomainError(domain.ErrorCodeCampaignNotActive, "campaign is not accepting investments").
			WithDetail("status", string(campaign.Status))
	}
	if err := campaign.ValidateAmount(amount, currency); err != nil {
		return err
	}
	return campaign.CanReserve(amount, now)
}

func rejectionLabel(err error) string {
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeInsufficientCapacity:
		return "rejected_capacity"
	case domain.ErrorCodeCampaignNotActive:
		return "rejected_inactive"
	default:
		return "rejected_invalid"
	}
}

// Commit converts a held reservation into settled capital. Committing the
// same token again is a no-op. When settled capital reaches the goal the
// campaign moves to funded and its owner is notified.
func (a *Aggregator) Commit(ctx context.Context, token uuid.UUID) (*Settlement, error) {
	var settlement *Settlement
	err := a.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		settlement, err = a.CommitTx(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.AnnounceFunded(ctx, settlement)
	return settlement, nil
}

// CommitTx is Commit inside the caller's transaction. The caller announces
// funding with AnnounceFunded once the transaction has committed.
func (a *Aggregator) CommitTx(ctx context.Context, tx ports.DBTX, token uuid.UUID) (*Settlement, error) {
	reservation, err := a.reservations.GetForUpdate(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	switch reservation.Status {
	case domain.ReservationStatusHeld:
	case domain.ReservationStatusCommitted:
		return &Settlement{}, nil
	default:
		return nil, domain.NewDomainError(domain.ErrorCodeReconciliationConflict, "cannot commit a reservation that is no longer held").
			WithDetail("reservation_id", token.String()).
			WithDetail("status", string(reservation.Status))
	}

	campaign, err := a.campaigns.GetForUpdate(ctx, tx, reservation.CampaignID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	campaign.PendingAmount -= reservation.Amount
	campaign.UpdatedAt = now

	funded := false
	if campaign.Status == domain.CampaignStatusActive && campaign.GoalReached() {
		campaign.Status = domain.CampaignStatusFunded
		campaign.FundedAt = &now
		funded = true
	}

	if err := a.campaigns.UpdateFunding(ctx, tx, campaign); err != nil {
		return nil, err
	}
	if err := a.reservations.UpdateStatus(ctx, tx, token, domain.ReservationStatusCommitted); err != nil {
		return nil, err
	}

	observability.RecordSettlement("commit")
	observability.RecordCommittedAmount(campaign.Currency, campaign.SettledAmount())
	if funded {
		observability.RecordCampaignFunded()
		a.logger.Info("Campaign funded",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int64("funding_goal", campaign.FundingGoal),
		)
	}
	return &Settlement{Campaign: campaign, Applied: true, Funded: funded}, nil
}

// Release returns a held reservation's capacity. Releasing a committed or
// already released token is a no-op.
func (a *Aggregator) Release(ctx context.Context, token uuid.UUID) (*Settlement, error) {
	var settlement *Settlement
	err := a.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		settlement, err = a.ReleaseTx(ctx, tx, token)
		return err
	})
	return settlement, err
}

// ReleaseTx is Release inside the caller's transaction
func (a *Aggregator) ReleaseTx(ctx context.Context, tx ports.DBTX, token uuid.UUID) (*Settlement, error) {
	reservation, err := a.reservations.GetForUpdate(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if !reservation.IsHeld() {
		return &Settlement{}, nil
	}

	campaign, err := a.campaigns.GetForUpdate(ctx, tx, reservation.CampaignID)
	if err != nil {
		return nil, err
	}
	campaign.CommittedAmount -= reservation.Amount
	campaign.PendingAmount -= reservation.Amount
	campaign.UpdatedAt = a.clock.Now()

	if err := a.campaigns.UpdateFunding(ctx, tx, campaign); err != nil {
		return nil, err
	}
	if err := a.reservations.UpdateStatus(ctx, tx, token, domain.ReservationStatusReleased); err != nil {
		return nil, err
	}

	observability.RecordSettlement("release")
	return &Settlement{Campaign: campaign, Applied: true}, nil
}

// ReverseTx gives back committed capital after a refund. A campaign that
// drops below its goal returns from funded to active. Reversing a token that
// is not committed is a no-op.
func (a *Aggregator) ReverseTx(ctx context.Context, tx ports.DBTX, token uuid.UUID) (*Settlement, error) {
	reservation, err := a.reservations.GetForUpdate(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if reservation.Status != domain.ReservationStatusCommitted {
		return &Settlement{}, nil
	}

	campaign, err := a.campaigns.GetForUpdate(ctx, tx, reservation.CampaignID)
	if err != nil {
		return nil, err
	}
	campaign.CommittedAmount -= reservation.Amount
	campaign.UpdatedAt = a.clock.Now()
	if campaign.Status == domain.CampaignStatusFunded && !campaign.GoalReached() {
		campaign.Status = domain.CampaignStatusActive
		campaign.FundedAt = nil
	}

	if err := a.campaigns.UpdateFunding(ctx, tx, campaign); err != nil {
		return nil, err
	}
	if err := a.reservations.UpdateStatus(ctx, tx, token, domain.ReservationStatusReversed); err != nil {
		return nil, err
	}

	observability.RecordSettlement("reverse")
	observability.RecordCommittedAmount(campaign.Currency, campaign.SettledAmount())
	return &Settlement{Campaign: campaign, Applied: true}, nil
}

// AnnounceFunded notifies the campaign owner when settlement funded the campaign
func (a *Aggregator) AnnounceFunded(ctx context.Context, settlement *Settlement) {
	if settlement == nil || !settlement.Funded || a.notifier == nil {
		return
	}
	campaign := settlement.Campaign
	err := a.notifier.Notify(ctx, domain.Notification{
		CampaignID:  campaign.ID,
		Type:        domain.NotificationCampaignFunded,
		RecipientID: campaign.OwnerID,
		OccurredAt:  a.clock.Now(),
	})
	if err != nil {
		a.logger.Warn("Failed to queue funded notification",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Error(err),
		)
	}
}

// AuditReport compares stored campaign counters with the reservation records
type AuditReport struct {
	CampaignID        uuid.UUID
	CommittedAmount   int64
	PendingAmount     int64
	ExpectedCommitted int64
	ExpectedPending   int64
	ByStatus          map[domain.ReservationStatus]int64
}

// HasDrift reports whether the counters disagree with the reservations
func (r *AuditReport) HasDrift() bool {
	return r.CommittedAmount != r.ExpectedCommitted || r.PendingAmount != r.ExpectedPending
}

// Audit recomputes committed capital from reservations and reports drift
func (a *Aggregator) Audit(ctx context.Context, campaignID uuid.UUID) (*AuditReport, error) {
	var report *AuditReport
	err := a.txm.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		campaign, err := a.campaigns.GetByID(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		sums, err := a.reservations.SumByStatus(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		held := sums[domain.ReservationStatusHeld]
		report = &AuditReport{
			CampaignID:        campaignID,
			CommittedAmount:   campaign.CommittedAmount,
			PendingAmount:     campaign.PendingAmount,
			ExpectedCommitted: held + sums[domain.ReservationStatusCommitted],
			ExpectedPending:   held,
			ByStatus:          sums,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit campaign %s: %w", campaignID, err)
	}

	if report.HasDrift() {
		observability.RecordAuditDrift()
		a.logger.Error("Campaign funding drift detected",
			zap.String("campaign_id", campaignID.String()),
			zap.Int64("committed_amount", report.CommittedAmount),
			zap.Int64("expected_committed", report.ExpectedCommitted),
			zap.Int64("pending_amount", report.PendingAmount),
			zap.Int64("expected_pending", report.ExpectedPending),
		)
	}
	return report, nil
}
