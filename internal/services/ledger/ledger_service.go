package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/adapters/gateway"
	"github.com/kevin07696/funding-service/internal/domain"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/funding"
	"github.com/kevin07696/funding-service/internal/services/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/keylock"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the number of failed recurring charges that defaults a plan
	DefaultMaxAttempts = 3
	// DefaultMaxTransientSweeps is the number of consecutive sweeps a charge may
	// fail transiently before it counts as a failed attempt
	DefaultMaxTransientSweeps = 3
)

// Config tunes the ledger
type Config struct {
	MaxAttempts        int
	MaxTransientSweeps int
}

// Dependencies groups the collaborators of the ledger service
type Dependencies struct {
	Transactions domainports.TransactionManager
	Investments  domainports.InvestmentRepository
	Reservations domainports.ReservationRepository
	Aggregator   *funding.Aggregator
	Gateways     domainports.GatewayResolver
	Notifier     domainports.Notifier
	// Locks serializes work per investment; share one Locker between every
	// service that mutates investments
	Locks  *keylock.Locker
	Clock  timeutil.Clock
	Logger *zap.Logger
}

// ledgerService implements the LedgerService port. It is the only writer of
// investment status. Every mutation of one investment runs under its key
// lock, then inside one transaction that also carries the funding change.
type ledgerService struct {
	txm          domainports.TransactionManager
	investments  domainports.InvestmentRepository
	reservations domainports.ReservationRepository
	aggregator   *funding.Aggregator
	gateways     domainports.GatewayResolver
	notifier     domainports.Notifier
	locks        *keylock.Locker
	clock        timeutil.Clock
	tracer       trace.Tracer
	logger       *zap.Logger
	maxAttempts  int
	maxSweeps    int
}

// NewLedgerService creates a new ledger service
func NewLedgerService(deps Dependencies, cfg Config) ports.LedgerService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxTransientSweeps <= 0 {
		cfg.MaxTransientSweeps = DefaultMaxTransientSweeps
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	return &ledgerService{
		txm:          deps.Transactions,
		investments:  deps.Investments,
		reservations: deps.Reservations,
		aggregator:   deps.Aggregator,
		gateways:     deps.Gateways,
		notifier:     deps.Notifier,
		locks:        deps.Locks,
		clock:        deps.Clock,
		tracer:       observability.Tracer("funding-service/ledger"),
		logger:       deps.Logger,
		maxAttempts:  cfg.MaxAttempts,
		maxSweeps:    cfg.MaxTransientSweeps,
	}
}

// Invest reserves capacity, records a pending investment and charges the
// investor. Repeating a request with the same idempotency key returns the
// recorded investment, resuming the charge if it never reached the provider.
//
// A declined charge is not an error: the investment comes back failed and its
// hold is released. A transient gateway failure returns the error and leaves
// the investment pending with its hold so the client can retry.
func (s *ledgerService) Invest(ctx context.Context, req *ports.InvestRequest) (*domain.Investment, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.invest", trace.WithAttributes(
		attribute.String("campaign.id", req.CampaignID.String()),
		attribute.String("payment.method", req.PaymentMethod),
	))
	defer span.End()

	inv, err := s.newInvestment(req)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Resolve(inv.PaymentMethod)
	if err != nil {
		return nil, err
	}

	existing, err := s.investments.GetByIdempotencyKey(ctx, nil, inv.IdempotencyKey)
	switch {
	case err == nil:
		return s.resume(ctx, gw, existing.ID)
	case !errors.Is(err, domain.ErrInvestmentNotFound):
		return nil, err
	}

	err = s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		reservation, err := s.aggregator.ReserveTx(ctx, tx, inv.CampaignID, inv.Amount, inv.Currency)
		if err != nil {
			return err
		}
		inv.ReservationID = &reservation.ID
		if err := s.investments.Create(ctx, tx, inv); err != nil {
			return err
		}
		return s.reservations.AttachInvestment(ctx, tx, reservation.ID, inv.ID)
	})
	if errors.Is(err, domain.ErrDuplicateKey) {
		existing, err := s.investments.GetByIdempotencyKey(ctx, nil, inv.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		return s.resume(ctx, gw, existing.ID)
	}
	if err != nil {
		span.RecordError(err)
		if domain.IsRejection(err) {
			s.logger.Info("Investment rejected",
				zap.String("campaign_id", inv.CampaignID.String()),
				zap.Int64("amount", inv.Amount),
				zap.String("reason", string(domain.GetErrorCode(err))),
			)
		}
		return nil, err
	}

	s.logger.Info("Investment recorded",
		zap.String("investment_id", inv.ID.String()),
		zap.String("campaign_id", inv.CampaignID.String()),
		zap.String("investment_type", string(inv.Type)),
		zap.Int64("amount", inv.Amount),
	)
	return s.resume(ctx, gw, inv.ID)
}

func (s *ledgerService) newInvestment(req *ports.InvestRequest) (*domain.Investment, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, domain.NewValidationError("idempotency_key", "idempotency_key is required")
	}
	if req.PayerRef == "" {
		return nil, domain.NewValidationError("payer_ref", "payer_ref is required")
	}

	now := s.clock.Now()
	inv := &domain.Investment{
		ID:             uuid.New(),
		CampaignID:     req.CampaignID,
		InvestorID:     req.InvestorID,
		PaymentMethod:  req.PaymentMethod,
		PayerRef:       req.PayerRef,
		IdempotencyKey: req.IdempotencyKey,
		Currency:       strings.ToUpper(req.Currency),
		Amount:         req.Amount,
		Type:           req.Type,
		Status:         domain.InvestmentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if inv.Type == "" {
		inv.Type = domain.InvestmentTypeOneTime
	}
	if inv.Type == domain.InvestmentTypeRecurring {
		if req.EndDate != nil && !req.EndDate.After(now) {
			return nil, domain.NewValidationError("end_date", "end date must be in the future")
		}
		inv.Recurring = &domain.RecurringState{
			Frequency: req.Frequency,
			EndDate:   req.EndDate,
		}
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// resume drives a pending investment through its initial provider calls.
// Investments already past that point are returned as stored.
func (s *ledgerService) resume(ctx context.Context, gw domainports.PaymentGateway, id uuid.UUID) (*domain.Investment, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	inv, err := s.investments.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvestmentStatusPending || inv.ExternalRef != "" {
		return inv, nil
	}

	// A pending investment untouched for the hold TTL is expired by the
	// scheduler; mark this attempt so a slow provider call is not cut short.
	if err := s.touch(ctx, inv); err != nil {
		return nil, err
	}

	if inv.IsRecurring() && inv.Recurring.SubscriptionRef == "" {
		if err := s.subscribe(ctx, gw, inv); err != nil {
			if pkgerrors.IsPermanent(err) {
				return s.failInitial(ctx, inv.ID, err)
			}
			return nil, err
		}
	}

	metadata := map[string]string{
		gateway.MetadataInvestmentID: inv.ID.String(),
		gateway.MetadataCampaignID:   inv.CampaignID.String(),
	}
	if inv.IsRecurring() {
		metadata[gateway.MetadataSubscriptionRef] = inv.Recurring.SubscriptionRef
	}
	result, err := gw.Charge(ctx, &domainports.ChargeRequest{
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		PayerRef:       inv.PayerRef,
		IdempotencyKey: inv.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		if pkgerrors.IsPermanent(err) {
			return s.failInitial(ctx, inv.ID, err)
		}
		s.logger.Warn("Investment charge did not complete, hold kept for retry",
			zap.String("investment_id", inv.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	recordRef := func(i *domain.Investment) { i.ExternalRef = result.ExternalRef }
	switch result.Status {
	case domainports.ChargeStatusSucceeded:
		applied, err := s.applyLocked(ctx, inv.ID, transition{event: domain.EventSucceeded, prepare: recordRef})
		if err != nil {
			return nil, err
		}
		return applied.Investment, nil
	case domainports.ChargeStatusFailed:
		applied, err := s.applyLocked(ctx, inv.ID, transition{event: domain.EventFailed, reason: result.Message, prepare: recordRef})
		if err != nil {
			return nil, err
		}
		s.cancelSubscription(ctx, gw, applied.Investment)
		return applied.Investment, nil
	}

	// Pending: the provider confirms through a webhook.
	err = s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		recordRef(current)
		current.UpdatedAt = s.clock.Now()
		inv = current
		return s.investments.Update(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Investment charge awaiting confirmation",
		zap.String("investment_id", inv.ID.String()),
		zap.String("external_ref", inv.ExternalRef),
	)
	return inv, nil
}

// touch bumps UpdatedAt on a still pending investment
func (s *ledgerService) touch(ctx context.Context, inv *domain.Investment) error {
	return s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.InvestmentStatusPending {
			return domain.NewInvalidTransition(current.Status, domain.EventSucceeded).
				WithDetail("reason", "investment settled while resuming")
		}
		current.UpdatedAt = s.clock.Now()
		if err := s.investments.Update(ctx, tx, current); err != nil {
			return err
		}
		*inv = *current
		return nil
	})
}

func (s *ledgerService) subscribe(ctx context.Context, gw domainports.PaymentGateway, inv *domain.Investment) error {
	start, err := domain.ComputeNextChargeDate(inv.Recurring.Frequency, s.clock.Now())
	if err != nil {
		return err
	}
	result, err := gw.Subscribe(ctx, &domainports.SubscribeRequest{
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		Frequency:      inv.Recurring.Frequency,
		PayerRef:       inv.PayerRef,
		StartDate:      start,
		IdempotencyKey: inv.IdempotencyKey + "-mandate",
	})
	if err != nil {
		return err
	}

	return s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := s.investments.GetForUpdate(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		current.Recurring.SubscriptionRef = result.SubscriptionRef
		current.UpdatedAt = s.clock.Now()
		if err := s.investments.Update(ctx, tx, current); err != nil {
			return err
		}
		*inv = *current
		return nil
	})
}

// failInitial records a permanent failure of the initial provider calls
func (s *ledgerService) failInitial(ctx context.Context, id uuid.UUID, cause error) (*domain.Investment, error) {
	applied, err := s.applyLocked(ctx, id, transition{event: domain.EventFailed, reason: failureReason(cause)})
	if err != nil {
		return nil, err
	}
	if gw, err := s.gateways.Resolve(applied.Investment.PaymentMethod); err == nil {
		s.cancelSubscription(ctx, gw, applied.Investment)
	}
	return applied.Investment, nil
}

// cancelSubscription stops a provider mandate without failing the caller
func (s *ledgerService) cancelSubscription(ctx context.Context, gw domainports.PaymentGateway, inv *domain.Investment) {
	if inv.Recurring == nil || inv.Recurring.SubscriptionRef == "" {
		return
	}
	if err := gw.CancelSubscription(ctx, inv.Recurring.SubscriptionRef); err != nil {
		s.logger.Warn("Failed to cancel provider subscription",
			zap.String("investment_id", inv.ID.String()),
			zap.String("subscription_ref", inv.Recurring.SubscriptionRef),
			zap.Error(err),
		)
	}
}

// GetInvestment retrieves an investment
func (s *ledgerService) GetInvestment(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	return s.investments.GetByID(ctx, nil, id)
}

// FindByExternalRef resolves a provider reference to its investment
func (s *ledgerService) FindByExternalRef(ctx context.Context, externalRef string) (*domain.Investment, error) {
	return s.investments.GetByExternalRef(ctx, nil, externalRef)
}

// ListByCampaign lists investments in a campaign, newest first
func (s *ledgerService) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int32) ([]*domain.Investment, error) {
	return s.investments.ListByCampaign(ctx, nil, campaignID, clampLimit(limit), offset)
}

// ListByInvestor lists investments made by an investor, newest first
func (s *ledgerService) ListByInvestor(ctx context.Context, investorID string, limit, offset int32) ([]*domain.Investment, error) {
	return s.investments.ListByInvestor(ctx, nil, investorID, clampLimit(limit), offset)
}

// ListDueRecurring returns recurring investments due at asOf
func (s *ledgerService) ListDueRecurring(ctx context.Context, asOf time.Time, limit int32) ([]*domain.Investment, error) {
	return s.investments.ListDueRecurring(ctx, nil, asOf, limit)
}

func clampLimit(limit int32) int32 {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}

// Apply performs one ledger transition. Events carrying an id already
// applied to the investment are reported as duplicates and change nothing.
func (s *ledgerService) Apply(ctx context.Context, req *ports.ApplyEventRequest) (*ports.ApplyResult, error) {
	unlock, err := s.locks.Lock(ctx, req.InvestmentID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	t := transition{
		event:    req.Event,
		eventID:  req.EventID,
		reason:   req.Reason,
		external: req.EventID != "",
	}
	if ref := req.ExternalRef; ref != "" && (req.Event == domain.EventSucceeded || req.Event == domain.EventFailed) {
		t.prepare = func(inv *domain.Investment) {
			if inv.ExternalRef == "" {
				inv.ExternalRef = ref
			}
		}
	}
	return s.applyLocked(ctx, req.InvestmentID, t)
}

// CancelRecurring stops a recurring plan at the investor's request. A charge
// claimed or awaiting provider confirmation blocks cancellation until it
// settles. The check is repeated under the row lock, so a charge started by
// another process between the read and the cancel still blocks it. The
// provider mandate is cancelled once the ledger records the cancel.
func (s *ledgerService) CancelRecurring(ctx context.Context, id uuid.UUID, reason string) (*domain.Investment, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	inv, err := s.investments.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsRecurring() || inv.Status != domain.InvestmentStatusActive {
		observability.RecordInvalidTransition(string(domain.EventCancel), string(inv.Status))
		return nil, domain.NewInvalidTransition(inv.Status, domain.EventCancel)
	}
	if inv.HasChargeInFlight() {
		return nil, domain.ErrChargeInFlight
	}

	gw, err := s.gateways.Resolve(inv.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "cancelled by investor"
	}
	applied, err := s.applyLocked(ctx, id, transition{event: domain.EventCancel, reason: reason})
	if err != nil {
		return nil, err
	}
	s.cancelSubscription(ctx, gw, applied.Investment)
	return applied.Investment, nil
}

// Refund returns a completed one-time investment to the investor. When the
// provider settles the refund asynchronously the investment stays completed
// until the refund webhook arrives.
func (s *ledgerService) Refund(ctx context.Context, id uuid.UUID, reason string) (*domain.Investment, error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	inv, err := s.investments.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvestmentStatusCompleted {
		observability.RecordInvalidTransition(string(domain.EventRefund), string(inv.Status))
		return nil, domain.NewInvalidTransition(inv.Status, domain.EventRefund)
	}

	gw, err := s.gateways.Resolve(inv.PaymentMethod)
	if err != nil {
		return nil, err
	}
	result, err := gw.Refund(ctx, &domainports.RefundRequest{
		ExternalRef:    inv.ExternalRef,
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		IdempotencyKey: "refund-" + inv.ID.String(),
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case domainports.ChargeStatusSucceeded:
		applied, err := s.applyLocked(ctx, id, transition{event: domain.EventRefund, reason: reason})
		if err != nil {
			return nil, err
		}
		return applied.Investment, nil
	case domainports.ChargeStatusFailed:
		return nil, pkgerrors.NewPermanentError(gw.Name(), gateway.CodeDeclined, "refund rejected by provider", pkgerrors.CategoryDeclined)
	}

	s.logger.Info("Refund awaiting confirmation",
		zap.String("investment_id", inv.ID.String()),
		zap.String("refund_ref", result.RefundRef),
	)
	return inv, nil
}

// transition describes one call to applyLocked
type transition struct {
	event   domain.LedgerEvent
	eventID string
	reason  string
	// external marks provider-driven events, which must match a charge in flight
	external bool
	// chargeRef is the claim or provider ref of the scheduled charge being
	// settled; once another path settles that charge the transition is a duplicate
	chargeRef string
	// staleBefore, when set, skips investments updated at or after it
	staleBefore time.Time
	// prepare mutates the investment in the same unit as the transition
	prepare func(*domain.Investment)
}

// applyLocked runs a transition and its funding side effect as one
// persisted unit. The caller holds the investment's key lock.
func (s *ledgerService) applyLocked(ctx context.Context, id uuid.UUID, t transition) (*ports.ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.apply", trace.WithAttributes(
		attribute.String("investment.id", id.String()),
		attribute.String("ledger.event", string(t.event)),
	))
	defer span.End()

	var (
		result     *ports.ApplyResult
		settlement *funding.Settlement
	)
	err := s.txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		inv, err := s.investments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.eventID != "" && inv.HasApplied(t.eventID) {
			result = &ports.ApplyResult{Investment: inv, Duplicate: true}
			return nil
		}
		if t.chargeRef != "" && (inv.Recurring == nil || inv.Recurring.PendingChargeRef != t.chargeRef) ||
			!t.staleBefore.IsZero() && !inv.UpdatedAt.Before(t.staleBefore) {
			result = &ports.ApplyResult{Investment: inv, Duplicate: true}
			return nil
		}
		// A provider confirming an outcome already applied synchronously
		if (t.external || !isScheduledCharge(t.event)) && inv.Reflects(t.event) {
			result = &ports.ApplyResult{Investment: inv, Duplicate: true}
			if t.eventID == "" {
				return nil
			}
			inv.MarkApplied(t.eventID)
			return s.investments.Update(ctx, tx, inv)
		}
		if t.external && isScheduledCharge(t.event) && !inv.HasChargeInFlight() {
			return domain.NewInvalidTransition(inv.Status, t.event).
				WithDetail("reason", "no recurring charge awaiting confirmation")
		}
		if t.event == domain.EventCancel && inv.HasChargeInFlight() {
			return domain.ErrChargeInFlight
		}

		if t.prepare != nil {
			t.prepare(inv)
		}
		tr, err := inv.Apply(t.event, domain.TransitionOptions{
			Now:         s.clock.Now(),
			MaxAttempts: s.maxAttempts,
			Reason:      t.reason,
		})
		if err != nil {
			return err
		}
		inv.MarkApplied(t.eventID)

		settlement, err = s.settle(ctx, tx, inv, tr)
		if err != nil {
			return err
		}
		if err := s.investments.Update(ctx, tx, inv); err != nil {
			return err
		}
		result = &ports.ApplyResult{Investment: inv, Transition: tr}
		return nil
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
			observability.RecordInvalidTransition(string(t.event), detail(err, "from"))
			s.logger.Warn("Invalid ledger transition",
				zap.String("investment_id", id.String()),
				zap.String("event", string(t.event)),
				zap.String("event_id", t.eventID),
				zap.Error(err),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result.Duplicate {
		s.logger.Debug("Ledger event already applied",
			zap.String("investment_id", id.String()),
			zap.String("event", string(t.event)),
			zap.String("event_id", t.eventID),
		)
		return result, nil
	}

	tr := result.Transition
	observability.RecordLedgerTransition(string(tr.Event), string(tr.To))
	s.logger.Info("Ledger transition applied",
		zap.String("investment_id", id.String()),
		zap.String("event", string(tr.Event)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	)
	if tr.To == domain.InvestmentStatusDefaulted {
		s.logger.Error("Recurring investment defaulted",
			zap.String("investment_id", id.String()),
			zap.Int("failed_attempts", result.Investment.Recurring.FailedAttempts),
			zap.String("reason", t.reason),
		)
	}

	s.aggregator.AnnounceFunded(ctx, settlement)
	s.notifyTransition(ctx, result.Investment, tr)
	return result, nil
}

// settle applies the funding effect of a transition inside tx
func (s *ledgerService) settle(ctx context.Context, tx domainports.DBTX, inv *domain.Investment, tr domain.Transition) (*funding.Settlement, error) {
	if inv.ReservationID == nil {
		return nil, nil
	}
	token := *inv.ReservationID
	switch tr.Event {
	case domain.EventSucceeded, domain.EventChargeSucceeded:
		return s.aggregator.CommitTx(ctx, tx, token)
	case domain.EventFailed, domain.EventChargeFailed, domain.EventCancel:
		return s.aggregator.ReleaseTx(ctx, tx, token)
	case domain.EventRefund:
		return s.aggregator.ReverseTx(ctx, tx, token)
	}
	return nil, nil
}

func (s *ledgerService) notifyTransition(ctx context.Context, inv *domain.Investment, tr domain.Transition) {
	if !tr.StatusChanged() || s.notifier == nil {
		return
	}
	kind, ok := domain.NotificationForStatus(tr.To)
	if !ok {
		return
	}
	err := s.notifier.Notify(ctx, domain.Notification{
		InvestmentID: inv.ID,
		CampaignID:   inv.CampaignID,
		Type:         kind,
		RecipientID:  inv.InvestorID,
		OccurredAt:   s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("Failed to queue investment notification",
			zap.String("investment_id", inv.ID.String()),
			zap.String("notification_type", string(kind)),
			zap.Error(err),
		)
	}
}

func isScheduledCharge(event domain.LedgerEvent) bool {
	return event == domain.EventChargeSucceeded || event == domain.EventChargeFailed
}

func failureReason(err error) string {
	if gwErr, ok := pkgerrors.AsGatewayError(err); ok {
		if gwErr.GatewayMessage != "" {
			return gwErr.GatewayMessage
		}
		return gwErr.Message
	}
	return err.Error()
}

func detail(err error, key string) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		if v, ok := domainErr.Details[key].(string); ok {
			return v
		}
	}
	return ""
}
