package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

const uniqueViolation = "23505"

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// conn picks the caller's transaction when given, otherwise the pool
func conn(pool *pgxpool.Pool, tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return pool
}

// mapError translates driver errors into domain errors.
// notFound is returned for pgx.ErrNoRows.
func mapError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}
	return domain.NewPersistenceError(op, err)
}

// isUniqueViolation reports whether err is a unique constraint failure
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// violatedConstraint names the unique constraint or index err violated
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}
