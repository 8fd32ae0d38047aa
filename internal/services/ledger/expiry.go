package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/pkg/observability"
	"go.uber.org/zap"
)

// settlementTimeoutReason is recorded on payments the provider never settled
const settlementTimeoutReason = "payment confirmation timed out"

// ListAwaitingSettlement returns investments still waiting on the provider
// that have not changed since before
func (s *ledgerService) ListAwaitingSettlement(ctx context.Context, before time.Time, limit int32) ([]*domain.Investment, error) {
	return s.investments.ListAwaitingSettlement(ctx, nil, before, limit)
}

// ExpireStale gives up on a payment the provider has not settled since
// before.
//
// A pending investment fails and releases its hold. A recurring charge the
// provider acknowledged counts as a failed attempt. A claimed charge that
// never got a provider reference is released for the next sweep, which
// retries it under the same key, exactly like an interrupted charge.
func (s *ledgerService) ExpireStale(ctx context.Context, id uuid.UUID, before time.Time) (bool, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return false, err
	}
	defer unlock()

	inv, err := s.investments.GetByID(ctx, nil, id)
	if err != nil {
		return false, err
	}
	if !inv.AwaitsSettlement() || !inv.UpdatedAt.Before(before) {
		return false, nil
	}
	gw, err := s.gateways.Resolve(inv.PaymentMethod)
	if err != nil {
		return false, err
	}

	if inv.ChargeClaimed() {
		claim := inv.Recurring.PendingChargeRef
		sweeps, err := s.releaseClaim(ctx, id, claim, before)
		if err != nil || sweeps == 0 {
			return false, err
		}
		s.logger.Warn("Released stale recurring charge claim",
			zap.String("investment_id", id.String()),
			zap.Int("sweeps", sweeps),
		)
		if sweeps >= s.maxSweeps {
			if _, err := s.chargeFailed(ctx, gw, id, claim, settlementTimeoutReason); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	t := transition{event: domain.EventFailed, reason: settlementTimeoutReason, staleBefore: before}
	if inv.Status == domain.InvestmentStatusActive {
		t.event = domain.EventChargeFailed
		t.chargeRef = inv.Recurring.PendingChargeRef
	}
	applied, err := s.applyLocked(ctx, id, t)
	if err != nil {
		return false, err
	}
	if applied.Duplicate {
		return false, nil
	}

	switch applied.Transition.To {
	case domain.InvestmentStatusFailed, domain.InvestmentStatusDefaulted:
		s.cancelSubscription(ctx, gw, applied.Investment)
	}
	if t.event == domain.EventChargeFailed {
		outcome := ports.ChargeOutcomeFailed
		if applied.Transition.To == domain.InvestmentStatusDefaulted {
			outcome = ports.ChargeOutcomeDefaulted
		}
		observability.RecordRecurringCharge(string(outcome))
	}
	s.logger.Warn("Expired payment awaiting settlement",
		zap.String("investment_id", id.String()),
		zap.String("event", string(t.event)),
		zap.String("to", string(applied.Transition.To)),
		zap.Time("last_updated", inv.UpdatedAt),
	)
	return true, nil
}
