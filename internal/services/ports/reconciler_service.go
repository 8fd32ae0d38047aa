package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// ReceiveOutcome reports how a webhook event was handled
type ReceiveOutcome string

const (
	ReceiveOutcomeApplied      ReceiveOutcome = "applied"
	ReceiveOutcomeDuplicate    ReceiveOutcome = "duplicate"
	ReceiveOutcomeDeadLettered ReceiveOutcome = "dead_lettered"
	ReceiveOutcomeIgnored      ReceiveOutcome = "ignored"
)

// ReconcilerService defines the port for asynchronous provider confirmations
type ReconcilerService interface {
	// Receive verifies and applies one provider event
	Receive(ctx context.Context, provider string, event *domain.WebhookEvent) (ReceiveOutcome, error)

	// ListDeadLetters returns events awaiting manual reconciliation
	ListDeadLetters(ctx context.Context, limit int32) ([]*domain.DeadLetter, error)

	// Replay re-applies a parked event, skipping signature verification
	Replay(ctx context.Context, id uuid.UUID) (ReceiveOutcome, error)
}
