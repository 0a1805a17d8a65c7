package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/trialdata-api/internal/config"
	"github.com/jwalitptl/trialdata-api/internal/email"
	"github.com/jwalitptl/trialdata-api/internal/repository/postgres"
	derivationService "github.com/jwalitptl/trialdata-api/internal/service/derivation"
	"github.com/jwalitptl/trialdata-api/internal/worker"
	"github.com/jwalitptl/trialdata-api/pkg/logger"
	"github.com/jwalitptl/trialdata-api/pkg/messaging/redis"
	"github.com/jwalitptl/trialdata-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	obsRepo := postgres.NewObservationRepository(db)
	refRepo := postgres.NewReferenceDateRepository(db)
	analysisRepo := postgres.NewAnalysisRecordRepository(db)
	runRepo := postgres.NewRunRepository(db)

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("trialdata", "worker")
	derivationSvc := derivationService.NewService(runRepo, obsRepo, refRepo, analysisRepo, broker, m, appLogger)

	var emailSvc email.Service
	if cfg.Email.Enabled {
		emailSvc = email.NewSMTPService(cfg.Email)
	}

	processor := worker.NewRunProcessor(derivationSvc, emailSvc, worker.RunProcessorConfig{
		PollInterval:  cfg.Worker.PollInterval,
		RetryAttempts: cfg.Worker.RetryAttempts,
		RetryDelay:    cfg.Worker.RetryDelay,
	}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go processor.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker...")
	cancel()
	log.Info().Msg("worker exited properly")
}
