package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/harborgate/intake-monitoring-backend/internal/domain/baseline"
	"github.com/harborgate/intake-monitoring-backend/internal/infrastructure/cache"
	"github.com/harborgate/intake-monitoring-backend/internal/infrastructure/config"
	"github.com/harborgate/intake-monitoring-backend/internal/infrastructure/repository"
	"github.com/harborgate/intake-monitoring-backend/internal/infrastructure/telemetry"
	"github.com/harborgate/intake-monitoring-backend/internal/metrics"
	"github.com/harborgate/intake-monitoring-backend/internal/service/monitoring"
)

const version = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("monitor failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting intake monitoring engine",
		zap.String("version", version),
		zap.String("environment", cfg.Environment))

	provider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry(cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	monCfg := cfg.Monitoring()

	repo := repository.NewMonitoringRepository(pool)
	velocity := cache.NewVelocityStore(redisClient, monCfg.LocationWindow, logger.Named("velocity"))
	baselines := baseline.NewStore(monCfg.BaselineCapacity)

	dispatcher := monitoring.NewDispatcher(monCfg,
		monitoring.NewLogBlockService(logger.Named("block")),
		monitoring.NewLogInvestigationService(logger.Named("investigation")),
		monitoring.NewLogNotificationService(logger.Named("notify")),
		registry, logger.Named("dispatcher"))
	dispatcher.Start()

	engine := monitoring.NewEngine(monCfg, repo, velocity, baselines, dispatcher, registry, logger.Named("engine"))
	defer engine.Close()

	scheduler := monitoring.NewScheduler(engine.Jobs(), registry, logger.Named("scheduler"))
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("monitoring engine running",
		zap.Int("sweep_jobs", len(engine.Jobs())),
		zap.Bool("auto_block", monCfg.AutoBlock),
		zap.Bool("auto_escalate", monCfg.AutoEscalate))

	<-ctx.Done()
	logger.Info("shutting down gracefully")
	return nil
}
