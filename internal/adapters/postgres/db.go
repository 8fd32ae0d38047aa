package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/pkg/resilience"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	// maxTxAttempts bounds replays of a transaction aborted by a lock conflict
	maxTxAttempts = 3
)

// DBExecutor implements ports.TransactionManager for PostgreSQL.
// A write transaction aborted by a deadlock or serialization failure is
// replayed from the start, so fn must only touch the database.
type DBExecutor struct {
	pool    *pgxpool.Pool
	backoff resilience.BackoffStrategy
}

// NewDBExecutor creates a new PostgreSQL database executor
func NewDBExecutor(pool *pgxpool.Pool) *DBExecutor {
	return &DBExecutor{
		pool: pool,
		backoff: &resilience.ExponentialBackoff{
			BaseDelay:  20 * time.Millisecond,
			MaxDelay:   200 * time.Millisecond,
			Multiplier: 2,
			Jitter:     0.5,
		},
	}
}

// WithTransaction runs fn in a read-write transaction.
// Row locks taken with SELECT ... FOR UPDATE inside fn are held until commit.
func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return resilience.Retry(ctx, resilience.RetryPolicy{
		MaxAttempts: maxTxAttempts,
		Backoff:     db.backoff,
		Retriable:   isLockConflict,
	}, func(ctx context.Context, _ int) error {
		return db.run(ctx, pgx.TxOptions{}, fn)
	})
}

// WithReadOnlyTransaction runs fn against one consistent snapshot
func (db *DBExecutor) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, fn)
}

func (db *DBExecutor) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isLockConflict reports whether Postgres aborted the transaction to break a lock cycle
func isLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}
