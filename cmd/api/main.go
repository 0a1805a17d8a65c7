package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/trialdata-api/internal/config"
	"github.com/jwalitptl/trialdata-api/internal/handler"
	datasetHandler "github.com/jwalitptl/trialdata-api/internal/handler/dataset"
	derivationHandler "github.com/jwalitptl/trialdata-api/internal/handler/derivation"
	"github.com/jwalitptl/trialdata-api/internal/handler/health"
	"github.com/jwalitptl/trialdata-api/internal/middleware"
	"github.com/jwalitptl/trialdata-api/internal/repository/postgres"
	"github.com/jwalitptl/trialdata-api/internal/router"
	datasetService "github.com/jwalitptl/trialdata-api/internal/service/dataset"
	derivationService "github.com/jwalitptl/trialdata-api/internal/service/derivation"
	"github.com/jwalitptl/trialdata-api/internal/service/export"
	"github.com/jwalitptl/trialdata-api/pkg/auth"
	"github.com/jwalitptl/trialdata-api/pkg/logger"
	"github.com/jwalitptl/trialdata-api/pkg/messaging/redis"
	"github.com/jwalitptl/trialdata-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	obsRepo := postgres.NewObservationRepository(db)
	refRepo := postgres.NewReferenceDateRepository(db)
	analysisRepo := postgres.NewAnalysisRecordRepository(db)
	runRepo := postgres.NewRunRepository(db)

	// Initialize Redis message broker
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

	m := metrics.NewMetrics("trialdata", "api")

	// Initialize services
	datasetSvc := datasetService.NewService(obsRepo, refRepo)
	derivationSvc := derivationService.NewService(runRepo, obsRepo, refRepo, analysisRepo, broker, m, appLogger)
	exporter := export.NewExporter(m)

	// Initialize middleware
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, cfg.JWT.Enabled)

	// Initialize handlers
	h := handler.NewHandler()
	if err := handler.RegisterValidations(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validations")
	}
	healthHandler := health.NewHandler(db)
	dsHandler := datasetHandler.NewHandler(datasetSvc)
	dvHandler := derivationHandler.NewHandler(derivationSvc, exporter)

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		healthHandler,
		dsHandler,
		dvHandler,
		h,
		router.RouterConfig{
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			MetricsPrefix:    "trialdata_http",
			MetricsPath:      cfg.Monitoring.MetricsPath,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
