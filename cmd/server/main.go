package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sepiso23/creator-monetization/internal/config"
	"github.com/sepiso23/creator-monetization/internal/fees"
	"github.com/sepiso23/creator-monetization/internal/gateway"
	"github.com/sepiso23/creator-monetization/internal/handlers"
	"github.com/sepiso23/creator-monetization/internal/jobs"
	"github.com/sepiso23/creator-monetization/internal/logging"
	"github.com/sepiso23/creator-monetization/internal/middleware"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := logging.SetupLogger(cfg.LogLevel)

	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	poolConfig, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		logger.Error("failed to parse db config", "err", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	var (
		cache       *redis.Client
		locker      jobs.Locker = jobs.NoopLocker{}
		idempotency gin.HandlerFunc
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "err", err)
			os.Exit(1)
		}
		cache = redis.NewClient(opts)
		defer cache.Close()
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		locker = jobs.NewRedisLocker(cache, 5*time.Minute)
		idempotency = middleware.Idempotency(cache, cfg.IdempotencyTTL, logger)
	} else {
		logger.Warn("REDIS_URL not set, idempotency keys and job locks are disabled")
	}

	engine, err := fees.NewEngine(fees.Policy{
		CashInPercent: cfg.CashInFeePercent,
		PayoutFlat:    cfg.PayoutFeeFlat,
	})
	if err != nil {
		logger.Error("invalid fee policy", "err", err)
		os.Exit(1)
	}

	store := repository.NewPGStore(pool, logger)
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIToken, cfg.GatewayTimeout, logger)

	ledger := service.NewLedgerService(store, engine, logger)
	wallets := service.NewWalletService(store, ledger, cfg.Currency, logger)
	payouts := service.NewPayoutOrchestrator(store, ledger, logger)
	payments := service.NewPaymentService(store, gw, logger)
	webhooks := service.NewWebhookReconciler(store, ledger, logger)

	handler := handlers.NewHTTPHandler(wallets, payouts, payments, webhooks)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	handler.RegisterRoutes(r, middleware.Authenticate(cfg.JWTSecret), idempotency)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	sweeper := jobs.NewPayoutSweeper(store, payouts, locker, logger)
	resender := jobs.NewResender(store, gw, locker, cfg.ResendMaxAttempts, cfg.ResendBackoff, logger)
	go jobs.Every(jobsCtx, cfg.PayoutSweepInterval, "payout-sweep", logger, func(ctx context.Context) error {
		_, err := sweeper.Run(ctx)
		return err
	})
	go jobs.Every(jobsCtx, cfg.ResendInterval, "resend-callbacks", logger, func(ctx context.Context) error {
		_, err := resender.Run(ctx)
		return err
	})

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")
	stopJobs()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	logger.Info("Server exiting")
}
