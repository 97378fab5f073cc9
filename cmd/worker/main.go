package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/medflow/waitlist-api/internal/config"
	"github.com/medflow/waitlist-api/internal/repository/postgres"
	policyService "github.com/medflow/waitlist-api/internal/service/policy"
	waitlistService "github.com/medflow/waitlist-api/internal/service/waitlist"
	"github.com/medflow/waitlist-api/pkg/locker"
	"github.com/medflow/waitlist-api/pkg/logger"
	messagingRedis "github.com/medflow/waitlist-api/pkg/messaging/redis"
	"github.com/medflow/waitlist-api/pkg/metrics"
	"github.com/medflow/waitlist-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	db, err := postgres.NewDB(cfg.Database())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	zl := log.Logger
	broker, err := messagingRedis.NewRedisBroker(messagingRedis.Config{URL: cfg.RedisURL}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	waitlistRepo := postgres.NewWaitlistRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	policyRepo := postgres.NewPolicyRepository(db)

	m := metrics.New("waitlist_worker")
	workerLogger := logger.NewLogger(nil)

	// The sweeper shares the waitlist service so expirations get the same
	// audit and event behavior as operator-driven transitions. No scope
	// lock: expiry only releases capacity, never consumes it.
	policySvc := policyService.NewService(policyRepo, 0)
	waitlistSvc := waitlistService.NewService(
		waitlistRepo, auditRepo, outboxRepo, policySvc,
		locker.Noop{}, waitlistService.NewArrivalScorer(), m,
	)

	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.OutboxBatchSize,
		PollInterval:  cfg.OutboxInterval,
		RetryAttempts: cfg.OutboxRetries,
		RetryDelay:    cfg.OutboxRetryDelay,
		RetainFor:     cfg.OutboxRetainFor,
	}, workerLogger, m)

	sweeper := worker.NewExpirySweeper(waitlistSvc, worker.ExpirySweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, workerLogger, m)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down worker...")

	cancel()
	wg.Wait()
	metricsSrv.Close()

	log.Info().Msg("worker exited properly")
}
