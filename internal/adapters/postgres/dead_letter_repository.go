package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

// DeadLetterRepository implements ports.DeadLetterRepository
type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository creates a new dead-letter repository
func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

// Create parks a webhook event
func (r *DeadLetterRepository) Create(ctx context.Context, db ports.DBTX, letter *domain.DeadLetter) error {
	event, err := json.Marshal(letter.Event)
	if err != nil {
		return fmt.Errorf("marshal dead letter event: %w", err)
	}

	_, err = conn(r.pool, db).Exec(ctx, `
		INSERT INTO webhook_dead_letters (id, provider, event, reason, detail, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		letter.ID, letter.Provider, event, string(letter.Reason), letter.Detail, letter.ResolvedAt, letter.CreatedAt,
	)
	return mapError("create dead letter", err, nil)
}

// GetByID retrieves a parked event
func (r *DeadLetterRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.DeadLetter, error) {
	row := conn(r.pool, db).QueryRow(ctx, `
		SELECT id, provider, event, reason, detail, resolved_at, created_at
		FROM webhook_dead_letters WHERE id = $1`, id)
	letter, err := scanDeadLetter(row)
	if err != nil {
		return nil, mapError("get dead letter", err, domain.ErrDeadLetterNotFound)
	}
	return letter, nil
}

// ListUnresolved returns parked events awaiting replay, oldest first
func (r *DeadLetterRepository) ListUnresolved(ctx context.Context, db ports.DBTX, limit int32) ([]*domain.DeadLetter, error) {
	rows, err := conn(r.pool, db).Query(ctx, `
		SELECT id, provider, event, reason, detail, resolved_at, created_at
		FROM webhook_dead_letters
		WHERE resolved_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapError("list dead letters", err, nil)
	}
	defer rows.Close()

	var out []*domain.DeadLetter
	for rows.Next() {
		letter, err := scanDeadLetter(rows)
		if err != nil {
			return nil, mapError("scan dead letter", err, nil)
		}
		out = append(out, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate dead letters", err, nil)
	}
	return out, nil
}

// MarkResolved records that a parked event was replayed successfully
func (r *DeadLetterRepository) MarkResolved(ctx context.Context, db ports.DBTX, id uuid.UUID, resolvedAt time.Time) error {
	tag, err := conn(r.pool, db).Exec(ctx,
		`UPDATE webhook_dead_letters SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL`, id, resolvedAt)
	if err != nil {
		return mapError("resolve dead letter", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeadLetterNotFound
	}
	return nil
}

func scanDeadLetter(row rowScanner) (*domain.DeadLetter, error) {
	var (
		letter domain.DeadLetter
		event  []byte
		reason string
	)
	if err := row.Scan(&letter.ID, &letter.Provider, &event, &reason, &letter.Detail, &letter.ResolvedAt, &letter.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(event, &letter.Event); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter event: %w", err)
	}
	letter.Reason = domain.DeadLetterReason(reason)
	return &letter, nil
}
