package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/cache"
	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
	"github.com/clearledger/compliance-backend/internal/infrastructure/database"
	"github.com/clearledger/compliance-backend/internal/infrastructure/telemetry"
	"github.com/clearledger/compliance-backend/internal/service/delivery"
	"github.com/clearledger/compliance-backend/internal/service/export"
	"github.com/clearledger/compliance-backend/internal/service/reporting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("engine terminated", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	telConfig := &telemetry.Config{
		ServiceName:    "clc-report-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	}
	provider, err := telemetry.InitializeOpenTelemetry(ctx, telConfig)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Config reads sit on the scheduler's hot path; when Redis is
	// configured they go through a cache-aside layer.
	var configRepository report.ConfigRepository = database.NewConfigRepository(db)
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		configRepository = cache.NewCachedConfigRepository(
			configRepository, redisCache, logger, cfg.Redis.ConfigTTL)
	}

	executions := database.NewExecutionRepository(db)
	auditEvents := database.NewAuditQueryRepository(db)
	verificationLog := database.NewVerificationLogRepository(db)

	storageChannel, err := delivery.NewStorageChannel(ctx, cfg.Delivery.Storage, logger)
	if err != nil {
		return err
	}
	dispatcher := delivery.NewDispatcher(delivery.RetryPolicy{
		MaxRetries: cfg.Delivery.MaxRetries,
		BaseDelay:  cfg.Delivery.BaseDelay,
		Multiplier: cfg.Delivery.BackoffMultiplier,
		MaxDelay:   cfg.Delivery.MaxBackoffDelay,
	}, logger,
		delivery.NewEmailChannel(cfg.Delivery.SMTP, logger),
		delivery.NewWebhookChannel(cfg.Delivery.Webhook, logger),
		storageChannel,
	)

	generator := reporting.NewGenerator(auditEvents, verificationLog, logger)
	encoder := export.NewEncoder(logger)
	executor := reporting.NewExecutor(executions, generator, encoder, dispatcher,
		cfg.Scheduler.ExecutionTimeout, logger)

	pool := reporting.NewWorkerPool(ctx, cfg.Scheduler.Workers, executor, logger)
	pool.Start()

	scheduler := reporting.NewScheduler(configRepository, executions, pool,
		cfg.Scheduler.PollInterval, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Port, logger)
		go collectRuntimeMetrics(ctx, db, pool)
	}

	logger.Info("report engine started",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("workers", cfg.Scheduler.Workers),
		zap.Duration("poll_interval", cfg.Scheduler.PollInterval))

	scheduler.Run(ctx)

	// Context cancelled: drain in-flight executions before closing the
	// infrastructure they depend on.
	logger.Info("shutting down")
	pool.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	return nil
}

func startMetricsServer(port int, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return server
}
