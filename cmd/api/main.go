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

	"github.com/medflow/waitlist-api/internal/config"
	healthHandler "github.com/medflow/waitlist-api/internal/handler/health"
	waitlistHandler "github.com/medflow/waitlist-api/internal/handler/waitlist"
	"github.com/medflow/waitlist-api/internal/middleware"
	"github.com/medflow/waitlist-api/internal/repository/postgres"
	"github.com/medflow/waitlist-api/internal/router"
	policyService "github.com/medflow/waitlist-api/internal/service/policy"
	waitlistService "github.com/medflow/waitlist-api/internal/service/waitlist"
	"github.com/medflow/waitlist-api/pkg/locker"
	messagingRedis "github.com/medflow/waitlist-api/pkg/messaging/redis"
	"github.com/medflow/waitlist-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	waitlistRepo := postgres.NewWaitlistRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	policyRepo := postgres.NewPolicyRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Redis backs both the scope lock and, in the worker, event delivery.
	zl := log.Logger
	broker, err := messagingRedis.NewRedisBroker(messagingRedis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	scopeLocker := locker.NewRedisScopeLocker(
		broker.(*messagingRedis.RedisBroker).Client(),
		cfg.Waitlist.ScopeLockTTL,
	)

	m := metrics.New("waitlist")

	// Services
	policySvc := policyService.NewService(policyRepo, cfg.Waitlist.PolicyCacheTTL)
	waitlistSvc := waitlistService.NewService(
		waitlistRepo, auditRepo, outboxRepo, policySvc,
		scopeLocker, waitlistService.NewArrivalScorer(), m,
	)

	// Handlers and router
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	wlHandler := waitlistHandler.NewHandler(waitlistSvc, policySvc)
	hHandler := healthHandler.NewHandler(db)

	r := router.NewRouter(authMiddleware, wlHandler, hHandler, router.Config{
		RateLimit:      rate.Limit(cfg.Server.RateLimitRPS),
		RateBurst:      cfg.Server.RateLimitBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPrefix:  "waitlist_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting waitlist API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

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
