package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface repositories run on: a pool or an open transaction.
// A nil DBTX means "outside any transaction".
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

// TransactionManager scopes repository calls to one atomic unit.
// Reserve, commit, release and every ledger transition each run in a single
// WithTransaction call; the tx handed to fn must be passed to every repository
// call inside it. Gateway calls never happen inside fn.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error

	// WithReadOnlyTransaction gives fn one consistent snapshot for audits and listings
	WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}
