package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/kevin07696/funding-service/internal/adapters/postgres"
	"github.com/kevin07696/funding-service/internal/config"
)

var flags = flag.NewFlagSet("migrate", flag.ExitOnError)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		return
	}
	command := args[0]

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Database.Driver != "postgres" {
		logger.Fatal("Migrations require STORE_DRIVER=postgres", zap.String("driver", cfg.Database.Driver))
	}

	db, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := postgres.Migrate(ctx, db, command, args[1:]...); err != nil {
		logger.Fatal("Migration failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("Migration complete", zap.String("command", command))
}

func usage() {
	fmt.Print(`Usage: migrate COMMAND

Commands:
    up                   Migrate the DB to the most recent version available
    up-by-one            Migrate the DB up by 1
    up-to VERSION        Migrate the DB to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    redo                 Re-run the latest migration
    reset                Roll back all migrations
    status               Dump the migration status for the current DB
    version              Print the current version of the database

Connection settings are read from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD,
DB_NAME and DB_SSL_MODE.
`)
}
