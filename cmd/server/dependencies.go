package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/funding-service/internal/adapters/database"
	"github.com/kevin07696/funding-service/internal/adapters/gateway"
	"github.com/kevin07696/funding-service/internal/adapters/idempotency"
	"github.com/kevin07696/funding-service/internal/adapters/memory"
	"github.com/kevin07696/funding-service/internal/adapters/notifier"
	"github.com/kevin07696/funding-service/internal/adapters/postgres"
	"github.com/kevin07696/funding-service/internal/adapters/secrets"
	"github.com/kevin07696/funding-service/internal/config"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/funding"
	"github.com/kevin07696/funding-service/internal/services/ledger"
	"github.com/kevin07696/funding-service/internal/services/notification"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/internal/services/reconciler"
	"github.com/kevin07696/funding-service/internal/services/scheduler"
	"github.com/kevin07696/funding-service/pkg/keylock"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/kevin07696/funding-service/pkg/shutdown"
	"github.com/kevin07696/funding-service/pkg/timeutil"
)

// Dependencies holds the services the servers expose
type Dependencies struct {
	clock      timeutil.Clock
	aggregator *funding.Aggregator
	ledger     ports.LedgerService
	reconciler ports.ReconcilerService
	scheduler  *scheduler.Scheduler
}

// repositories is the storage surface every service is built on
type repositories struct {
	txm          domainports.TransactionManager
	campaigns    domainports.CampaignRepository
	investments  domainports.InvestmentRepository
	reservations domainports.ReservationRepository
	deadLetters  domainports.DeadLetterRepository
}

func initDependencies(
	ctx context.Context,
	cfg *config.Config,
	sm *shutdown.Manager,
	healthChecker *observability.HealthChecker,
	logger *zap.Logger,
) (*Dependencies, error) {
	clock := timeutil.SystemClock{}
	timeouts := initTimeouts(cfg)

	repos, err := initStore(ctx, cfg, sm, healthChecker, logger)
	if err != nil {
		return nil, err
	}

	idempotencyStore, err := initIdempotency(ctx, cfg, sm, healthChecker, logger)
	if err != nil {
		return nil, err
	}

	secretStore, err := secrets.New(ctx, cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}

	providers, err := config.LoadProviders(cfg.Gateway.ProvidersFile)
	if err != nil {
		return nil, err
	}
	registry, err := gateway.BuildRegistry(providers.Providers, gateway.Dependencies{
		Secrets:        secretStore,
		Idempotency:    idempotencyStore,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		Timeouts:       timeouts,
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build gateway registry: %w", err)
	}
	logger.Info("Payment gateways configured", zap.Strings("methods", registry.Methods()))

	dispatcher, err := initNotifier(cfg, sm, timeouts, logger)
	if err != nil {
		return nil, err
	}
	sm.RegisterCloser("notification_dispatcher", dispatcher)

	aggregator := funding.NewAggregator(repos.txm, repos.campaigns, repos.reservations, dispatcher, clock, logger)

	ledgerService := ledger.NewLedgerService(ledger.Dependencies{
		Transactions: repos.txm,
		Investments:  repos.investments,
		Reservations: repos.reservations,
		Aggregator:   aggregator,
		Gateways:     registry,
		Notifier:     dispatcher,
		Locks:        keylock.New(),
		Clock:        clock,
		Logger:       logger,
	}, ledger.Config{
		MaxAttempts:        cfg.Scheduler.MaxAttempts,
		MaxTransientSweeps: cfg.Scheduler.MaxTransientSweeps,
	})

	verifier := gateway.NewHMACVerifier(
		secretStore,
		gateway.WebhookSecretPaths(providers.Providers),
		cfg.Gateway.WebhookTolerance,
		clock,
	)
	reconcilerService := reconciler.NewReconcilerService(ledgerService, verifier, repos.deadLetters, timeouts, clock, logger)

	billing := scheduler.New(ledgerService, scheduler.Config{
		Interval:  cfg.Scheduler.Interval,
		Workers:   cfg.Scheduler.Workers,
		BatchSize: cfg.Scheduler.BatchSize,
		HoldTTL:   cfg.Scheduler.HoldTTL,
	}, timeouts, clock, logger)

	return &Dependencies{
		clock:      clock,
		aggregator: aggregator,
		ledger:     ledgerService,
		reconciler: reconcilerService,
		scheduler:  billing,
	}, nil
}

func initTimeouts(cfg *config.Config) *resilience.TimeoutConfig {
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.GatewayCall = cfg.Gateway.CallTimeout
	timeouts.GatewayAttempt = cfg.Gateway.AttemptTimeout
	timeouts.Notification = cfg.Notifier.Timeout
	return timeouts
}

func initStore(
	ctx context.Context,
	cfg *config.Config,
	sm *shutdown.Manager,
	healthChecker *observability.HealthChecker,
	logger *zap.Logger,
) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; state is lost on restart")
		store := memory.NewStore()
		healthChecker.AddCheck("store", true, store.Ping)
		return &repositories{
			txm:          store,
			campaigns:    store.Campaigns(),
			investments:  store.Investments(),
			reservations: store.Reservations(),
			deadLetters:  store.DeadLetters(),
		}, nil
	}

	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.NewPostgreSQLAdapter(connectCtx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	sm.RegisterNoErr("database", db.Close)
	healthChecker.AddCheck("postgres", true, db.HealthCheck)
	db.StartPoolMonitoring(ctx, time.Minute)

	pool := db.Pool()
	return &repositories{
		txm:          postgres.NewDBExecutor(pool),
		campaigns:    postgres.NewCampaignRepository(pool),
		investments:  postgres.NewInvestmentRepository(pool),
		reservations: postgres.NewReservationRepository(pool),
		deadLetters:  postgres.NewDeadLetterRepository(pool),
	}, nil
}

func initIdempotency(
	ctx context.Context,
	cfg *config.Config,
	sm *shutdown.Manager,
	healthChecker *observability.HealthChecker,
	logger *zap.Logger,
) (domainports.IdempotencyStore, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set; gateway idempotency records are kept in process memory")
		return idempotency.NewMemoryStore(), nil
	}

	client, err := idempotency.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	sm.RegisterCloser("redis", client)

	store := idempotency.NewRedisStore(client)
	healthChecker.AddCheck("redis", true, store.Ping)
	return store, nil
}

func initNotifier(cfg *config.Config, sm *shutdown.Manager, timeouts *resilience.TimeoutConfig, logger *zap.Logger) (*notification.Dispatcher, error) {
	var sink domainports.Notifier
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set; notifications are only logged")
		sink = notifier.NewLogNotifier(logger)
	} else {
		kafka, err := notifier.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("init kafka notifier: %w", err)
		}
		sm.RegisterCloser("kafka_notifier", kafka)
		sink = kafka
		logger.Info("Publishing notifications to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	return notification.NewDispatcher(sink, notification.Config{
		QueueSize: cfg.Notifier.QueueSize,
		Workers:   cfg.Notifier.Workers,
	}, timeouts, logger), nil
}
