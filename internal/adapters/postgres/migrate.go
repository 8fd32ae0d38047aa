package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kevin07696/funding-service/internal/adapters/postgres/migrations"
	"github.com/pressly/goose/v3"
)

// Migrate runs a goose command against the embedded migrations
func Migrate(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
