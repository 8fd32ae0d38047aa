package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/funding-service/internal/config"
	cronHandler "github.com/kevin07696/funding-service/internal/handlers/cron"
	webhookHandler "github.com/kevin07696/funding-service/internal/handlers/webhook"
	"github.com/kevin07696/funding-service/pkg/middleware"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/shutdown"
)

const version = "0.1.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting funding service",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Database.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Components register in dependency order; shutdown runs newest first.
	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	sm.Register("tracer", shutdownTracer)

	healthChecker := observability.NewHealthChecker()

	deps, err := initDependencies(ctx, cfg, sm, healthChecker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	// gRPC server: health and reflection only
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			observability.UnaryServerInterceptor(),
			loggingInterceptor(logger),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("address", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server stopped unexpectedly", zap.Error(err))
			cancel()
		}
	}()
	sm.Register("grpc", func(ctx context.Context) error {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcServer.Stop()
		}
		return nil
	})

	// HTTP server: webhook intake and operator cron routes
	rateLimiter := middleware.NewRateLimiter(cfg.Server.WebhookRPS, cfg.Server.WebhookBurst, middleware.ClientIP)
	sm.RegisterCloser("webhook_rate_limiter", rateLimiter)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(observability.HTTPMiddleware)
	router.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		webhookHandler.NewHandler(deps.reconciler, logger).Routes(r)
	})
	cronHandler.NewBillingHandler(
		deps.scheduler,
		deps.reconciler,
		deps.aggregator,
		deps.clock,
		logger,
		cfg.Server.CronSecret,
	).Routes(router)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
			cancel()
		}
	}()
	sm.RegisterHTTPServer("http", httpServer)

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	sm.RegisterHTTPServer("metrics", metricsServer)

	// The scheduler registers last so it stops first.
	if cfg.Scheduler.Enabled {
		deps.scheduler.Start(ctx)
		sm.Register("scheduler", deps.scheduler.Stop)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	sm.WaitForShutdown(ctx)
}

func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Environment == "production" && !cfg.Logger.Development {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
