package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/adapters/gateway"
	"github.com/kevin07696/funding-service/internal/domain"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/observability"
	"go.uber.org/zap"
)

// ProcessDueCharge attempts the scheduled charge of a recurring investment.
//
// Each charge holds campaign capacity and is claimed in the same transaction
// before the provider is called, so no other process can cancel or repeat it
// while the call is out. A campaign that closed or has no room left ends the
// plan. Declines count toward the default cap; transient gateway failures
// keep the hold and retry with the same key on the next sweep, counting as a
// failed attempt once they persist for MaxTransientSweeps sweeps.
func (s *ledgerService) ProcessDueCharge(ctx context.Context, id uuid.UUID, now time.Time) (ports.ChargeOutcome, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return "", err
	}
	defer unlock()

	inv, err := s.investments.GetByID(ctx, nil, id)
	if err != nil {
		return "", err
	}
	if !inv.IsDue(now) {
		return ports.ChargeOutcomeSkipped, nil
	}

	gw, err := s.gateways.Resolve(inv.PaymentMethod)
	if err != nil {
		return "", err
	}

	claimed, claim, err := s.claimCharge(ctx, id, now)
	if err != nil {
		if domain.IsRejection(err) {
			return s.endPlan(ctx, gw, inv, err)
		}
		return "", err
	}
	if claim == "" {
		return ports.ChargeOutcomeSkipped, nil
	}
	inv = claimed

	due := *inv.Recurring.NextChargeDate
	result, err := gw.Charge(ctx, &domainports.ChargeRequest{
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		PayerRef:       inv.PayerRef,
		IdempotencyKey: chargeKey(inv, due),
		Metadata: map[string]string{
			gateway.MetadataInvestmentID:    inv.ID.String(),
			gateway.MetadataCampaignID:      inv.CampaignID.String(),
			gateway.MetadataSubscriptionRef: inv.Recurring.SubscriptionRef,
		},
	})
	if err != nil {
		if pkgerrors.IsPermanent(err) {
			return s.chargeFailed(ctx, gw, id, claim, failureReason(err))
		}
		return s.chargeInterrupted(ctx, gw, id, claim, due, err)
	}

	switch result.Status {
	case domainports.ChargeStatusSucceeded:
		applied, err := s.applyLocked(ctx, id, transition{event: domain.EventChargeSucceeded, chargeRef: claim})
		if err != nil {
			return "", err
		}
		if applied.Duplicate {
			return ports.ChargeOutcomeSkipped, nil
		}
		observability.RecordRecurringCharge(string(ports.ChargeOutcomeSucceeded))
		return ports.ChargeOutcomeSucceeded, nil
	case domainports.ChargeStatusFailed:
		return s.chargeFailed(ctx, gw, id, claim, result.Message)
	}

	settled := false
	err = s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Recurring == nil || current.Recurring.PendingChargeRef != claim {
			settled = true
			return nil
		}
		if result.ExternalRef != "" {
			current.Recurring.PendingChargeRef = result.ExternalRef
		}
		current.UpdatedAt = s.clock.Now()
		return s.investments.Update(ctx, tx, current)
	})
	if err != nil {
		return "", err
	}
	if settled {
		return ports.ChargeOutcomeSkipped, nil
	}
	observability.RecordRecurringCharge(string(ports.ChargeOutcomePending))
	s.logger.Info("Recurring charge awaiting confirmation",
		zap.String("investment_id", id.String()),
		zap.String("external_ref", result.ExternalRef),
	)
	return ports.ChargeOutcomePending, nil
}

// claimCharge holds capacity for the due charge and marks it in flight under
// the row lock. The claim is empty when the charge is no longer due, as when
// another process claimed it first.
func (s *ledgerService) claimCharge(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Investment, string, error) {
	var (
		claimed *domain.Investment
		claim   string
	)
	err := s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.IsDue(now) {
			return nil
		}
		if err := s.holdCapacity(ctx, tx, current); err != nil {
			return err
		}
		c := current.ClaimCharge(chargeKey(current, *current.Recurring.NextChargeDate))
		current.UpdatedAt = s.clock.Now()
		if err := s.investments.Update(ctx, tx, current); err != nil {
			return err
		}
		claimed, claim = current, c
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return claimed, claim, nil
}

// holdCapacity reserves the charge amount inside tx, reusing a hold left by
// an earlier attempt that never settled
func (s *ledgerService) holdCapacity(ctx context.Context, tx domainports.DBTX, current *domain.Investment) error {
	if current.ReservationID != nil {
		reservation, err := s.reservations.GetForUpdate(ctx, tx, *current.ReservationID)
		if err != nil {
			return err
		}
		if reservation.IsHeld() {
			return nil
		}
	}

	reservation, err := s.aggregator.ReserveTx(ctx, tx, current.CampaignID, current.Amount, current.Currency)
	if err != nil {
		return err
	}
	if err := s.reservations.AttachInvestment(ctx, tx, reservation.ID, current.ID); err != nil {
		return err
	}
	current.ReservationID = &reservation.ID
	return nil
}

// chargeInterrupted handles a charge the provider could not complete. The
// hold stays for the next sweep, which retries with the same key.
func (s *ledgerService) chargeInterrupted(ctx context.Context, gw domainports.PaymentGateway, id uuid.UUID, claim string, due time.Time, cause error) (ports.ChargeOutcome, error) {
	sweeps, err := s.releaseClaim(ctx, id, claim, time.Time{})
	if err != nil {
		return "", err
	}
	switch {
	case sweeps == 0:
		return ports.ChargeOutcomeSkipped, nil
	case sweeps >= s.maxSweeps:
		s.logger.Warn("Recurring charge unavailable for too many sweeps, counting a failed attempt",
			zap.String("investment_id", id.String()),
			zap.Int("sweeps", sweeps),
			zap.Error(cause),
		)
		return s.chargeFailed(ctx, gw, id, claim, "provider unavailable: "+failureReason(cause))
	}

	observability.RecordRecurringCharge("retry")
	s.logger.Warn("Recurring charge did not complete, will retry next sweep",
		zap.String("investment_id", id.String()),
		zap.Time("due_date", due),
		zap.Int("sweeps", sweeps),
		zap.Error(cause),
	)
	return ports.ChargeOutcomeFailed, cause
}

// releaseClaim counts one more interrupted sweep of a claimed charge and
// returns the count. Below the limit the claim is cleared so the next sweep
// retries; at the limit it is kept for the failed attempt that follows. It
// returns 0 when the claim is no longer held, or when before is set and the
// investment changed at or after it.
func (s *ledgerService) releaseClaim(ctx context.Context, id uuid.UUID, claim string, before time.Time) (int, error) {
	sweeps := 0
	err := s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Recurring == nil || current.Recurring.PendingChargeRef != claim {
			return nil
		}
		if !before.IsZero() && !current.UpdatedAt.Before(before) {
			return nil
		}
		current.Recurring.TransientFailures++
		sweeps = current.Recurring.TransientFailures
		if sweeps < s.maxSweeps {
			current.Recurring.PendingChargeRef = ""
		}
		current.UpdatedAt = s.clock.Now()
		return s.investments.Update(ctx, tx, current)
	})
	if err != nil {
		return 0, err
	}
	return sweeps, nil
}

// endPlan cancels a plan whose campaign can no longer take its charges
func (s *ledgerService) endPlan(ctx context.Context, gw domainports.PaymentGateway, inv *domain.Investment, cause error) (ports.ChargeOutcome, error) {
	s.logger.Info("Ending recurring investment, campaign cannot accept charge",
		zap.String("investment_id", inv.ID.String()),
		zap.String("campaign_id", inv.CampaignID.String()),
		zap.String("reason", string(domain.GetErrorCode(cause))),
	)
	s.cancelSubscription(ctx, gw, inv)

	reason := fmt.Sprintf("campaign closed to further charges: %s", domain.GetErrorCode(cause))
	if _, err := s.applyLocked(ctx, inv.ID, transition{event: domain.EventCancel, reason: reason}); err != nil {
		return "", err
	}
	observability.RecordRecurringCharge(string(ports.ChargeOutcomeCancelled))
	return ports.ChargeOutcomeCancelled, nil
}

func (s *ledgerService) chargeFailed(ctx context.Context, gw domainports.PaymentGateway, id uuid.UUID, claim, reason string) (ports.ChargeOutcome, error) {
	applied, err := s.applyLocked(ctx, id, transition{event: domain.EventChargeFailed, reason: reason, chargeRef: claim})
	if err != nil {
		return "", err
	}
	if applied.Duplicate {
		return ports.ChargeOutcomeSkipped, nil
	}
	if applied.Transition.To == domain.InvestmentStatusDefaulted {
		s.cancelSubscription(ctx, gw, applied.Investment)
		observability.RecordRecurringCharge(string(ports.ChargeOutcomeDefaulted))
		return ports.ChargeOutcomeDefaulted, nil
	}
	observability.RecordRecurringCharge(string(ports.ChargeOutcomeFailed))
	return ports.ChargeOutcomeFailed, nil
}

// chargeKey identifies one attempt at the charge due on due. A retry after a
// decline gets a fresh key so the provider does not replay the decline.
func chargeKey(inv *domain.Investment, due time.Time) string {
	key := inv.ChargeIdempotencyKey(due)
	if inv.Recurring.FailedAttempts > 0 {
		key = fmt.Sprintf("%s-r%d", key, inv.Recurring.FailedAttempts)
	}
	return key
}
