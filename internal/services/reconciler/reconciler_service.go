// Package reconciler applies asynchronous provider confirmations to the
// investment ledger exactly once and parks what it cannot apply.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// reconcilerService implements the ReconcilerService port. Serialization per
// investment comes from the ledger, so events for different investments are
// reconciled in parallel.
type reconcilerService struct {
	ledger      ports.LedgerService
	verifier    domainports.WebhookVerifier
	deadLetters domainports.DeadLetterRepository
	timeouts    *resilience.TimeoutConfig
	clock       timeutil.Clock
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewReconcilerService creates a new webhook reconciler
func NewReconcilerService(
	ledger ports.LedgerService,
	verifier domainports.WebhookVerifier,
	deadLetters domainports.DeadLetterRepository,
	timeouts *resilience.TimeoutConfig,
	clock timeutil.Clock,
	logger *zap.Logger,
) ports.ReconcilerService {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &reconcilerService{
		ledger:      ledger,
		verifier:    verifier,
		deadLetters: deadLetters,
		timeouts:    timeouts,
		clock:       clock,
		tracer:      observability.Tracer("funding-service/reconciler"),
		logger:      logger,
	}
}

// Receive verifies and applies one provider event. Events that cannot be
// applied are dead-lettered and acknowledged; only verification and storage
// failures are returned, so the provider retries only what may succeed later.
func (r *reconcilerService) Receive(ctx context.Context, provider string, event *domain.WebhookEvent) (ports.ReceiveOutcome, error) {
	start := time.Now()
	ctx, cancel := r.timeouts.WebhookContext(ctx)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "reconciler.receive", trace.WithAttributes(
		attribute.String("webhook.provider", provider),
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.type", string(event.Type)),
	))
	defer span.End()

	outcome, err := r.receive(ctx, provider, event)
	label := string(outcome)
	if err != nil {
		label = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("webhook.outcome", label))
	observability.RecordWebhookEvent(provider, label, time.Since(start).Seconds())
	return outcome, err
}

func (r *reconcilerService) receive(ctx context.Context, provider string, event *domain.WebhookEvent) (ports.ReceiveOutcome, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	if err := r.verifier.Verify(ctx, provider, event); err != nil {
		r.logger.Warn("Webhook verification failed",
			zap.String("provider", provider),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return "", err
	}

	outcome, parked, err := r.reconcile(ctx, event)
	if err != nil {
		return "", err
	}
	if parked != nil {
		if err := r.park(ctx, provider, event, parked); err != nil {
			return "", err
		}
		return ports.ReceiveOutcomeDeadLettered, nil
	}
	return outcome, nil
}

// parking explains why an event could not be applied
type parking struct {
	reason domain.DeadLetterReason
	detail string
}

// reconcile resolves and applies a verified event. A non-nil parking means
// the event must go to manual reconciliation.
func (r *reconcilerService) reconcile(ctx context.Context, event *domain.WebhookEvent) (ports.ReceiveOutcome, *parking, error) {
	ledgerEvent, ok := event.LedgerEventFor()
	if !ok {
		if event.Status == domain.WebhookStatusPending {
			return ports.ReceiveOutcomeIgnored, nil, nil
		}
		return "", &parking{
			reason: domain.DeadLetterUnsupportedEvent,
			detail: string(event.Type) + "/" + string(event.Status),
		}, nil
	}

	inv, err := r.resolve(ctx, event)
	if errors.Is(err, domain.ErrInvestmentNotFound) {
		return "", &parking{reason: domain.DeadLetterUnresolvedRef, detail: event.ExternalRef}, nil
	}
	if err != nil {
		return "", nil, err
	}

	result, err := r.ledger.Apply(ctx, &ports.ApplyEventRequest{
		InvestmentID: inv.ID,
		Event:        ledgerEvent,
		EventID:      event.ID,
		Reason:       event.Reason,
		ExternalRef:  event.ExternalRef,
	})
	switch {
	case domain.IsDomainError(err, domain.ErrorCodeInvalidTransition),
		domain.IsDomainError(err, domain.ErrorCodeReconciliationConflict):
		return "", &parking{reason: domain.DeadLetterInvalidTransition, detail: err.Error()}, nil
	case err != nil:
		return "", nil, err
	case result.Duplicate:
		return ports.ReceiveOutcomeDuplicate, nil, nil
	}

	r.logger.Info("Webhook event applied",
		zap.String("event_id", event.ID),
		zap.String("investment_id", inv.ID.String()),
		zap.String("status", string(result.Investment.Status)),
	)
	return ports.ReceiveOutcomeApplied, nil, nil
}

// resolve finds the investment an event concerns. A provider may confirm a
// charge whose reference was never stored, either because the confirmation
// raced the charge call or because a recurring charge settled synchronously.
// Such an event is matched by the investment id it echoes, but only to an
// investment with no initial reference yet or to a recurring plan.
func (r *reconcilerService) resolve(ctx context.Context, event *domain.WebhookEvent) (*domain.Investment, error) {
	inv, err := r.ledger.FindByExternalRef(ctx, event.ExternalRef)
	if !errors.Is(err, domain.ErrInvestmentNotFound) || event.InvestmentID == "" {
		return inv, err
	}
	id, parseErr := uuid.Parse(event.InvestmentID)
	if parseErr != nil {
		return nil, domain.ErrInvestmentNotFound
	}
	inv, err = r.ledger.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	waiting := inv.ExternalRef == "" || inv.IsRecurring() && event.Type == domain.WebhookEventRecurringCharge
	if !waiting {
		return nil, domain.ErrInvestmentNotFound
	}
	r.logger.Info("Webhook resolved by investment id",
		zap.String("event_id", event.ID),
		zap.String("investment_id", inv.ID.String()),
		zap.String("external_ref", event.ExternalRef),
	)
	return inv, nil
}

func (r *reconcilerService) park(ctx context.Context, provider string, event *domain.WebhookEvent, p *parking) error {
	letter := &domain.DeadLetter{
		ID:        uuid.New(),
		Provider:  provider,
		Event:     *event,
		Reason:    p.reason,
		Detail:    p.detail,
		CreatedAt: r.clock.Now(),
	}
	if err := r.deadLetters.Create(ctx, nil, letter); err != nil {
		return err
	}

	observability.RecordDeadLetter(provider, string(p.reason))
	r.logger.Warn("Webhook event dead-lettered",
		zap.String("dead_letter_id", letter.ID.String()),
		zap.String("provider", provider),
		zap.String("event_id", event.ID),
		zap.String("external_ref", event.ExternalRef),
		zap.String("reason", string(p.reason)),
		zap.String("detail", p.detail),
	)
	return nil
}

// ListDeadLetters returns unresolved dead letters, oldest first
func (r *reconcilerService) ListDeadLetters(ctx context.Context, limit int32) ([]*domain.DeadLetter, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.deadLetters.ListUnresolved(ctx, nil, limit)
}

// Replay re-applies a parked event. Its signature was verified on receipt.
// An event that still cannot be applied stays parked and a
// ReconciliationConflict is returned.
func (r *reconcilerService) Replay(ctx context.Context, id uuid.UUID) (ports.ReceiveOutcome, error) {
	letter, err := r.deadLetters.GetByID(ctx, nil, id)
	if err != nil {
		return "", err
	}
	if letter.ResolvedAt != nil {
		return ports.ReceiveOutcomeDuplicate, nil
	}

	outcome, parked, err := r.reconcile(ctx, &letter.Event)
	if err != nil {
		return "", err
	}
	if parked != nil {
		return "", domain.NewDomainError(domain.ErrorCodeReconciliationConflict, "dead letter still cannot be applied").
			WithDetail("reason", string(parked.reason)).
			WithDetail("detail", parked.detail)
	}

	if err := r.deadLetters.MarkResolved(ctx, nil, id, r.clock.Now()); err != nil {
		return "", err
	}
	r.logger.Info("Dead letter replayed",
		zap.String("dead_letter_id", id.String()),
		zap.String("event_id", letter.Event.ID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
