package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callscope/outbound-delivery/internal/api"
	"github.com/callscope/outbound-delivery/internal/backoff"
	"github.com/callscope/outbound-delivery/internal/breaker"
	"github.com/callscope/outbound-delivery/internal/config"
	"github.com/callscope/outbound-delivery/internal/queue"
	"github.com/callscope/outbound-delivery/internal/store"
	"github.com/callscope/outbound-delivery/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// One breaker per vendor, created up front so health reporting covers
	// them before the first call.
	registry := breaker.NewRegistry(logger)
	registry.GetBreaker("twilio")
	registry.GetBreaker("deepgram", breaker.Config{Timeout: 30 * time.Second})
	registry.GetBreaker("elevenlabs")

	limiter := queue.NewRateLimiter(redisStore.Client(), logger)
	calculator := backoff.New(cfg.BackoffBaseDelay, cfg.BackoffMaxDelay)
	deliverer := worker.NewDeliverer(pgStore, limiter, calculator, logger)

	enqueuer := queue.NewEnqueuer(pgStore, pgStore, logger)

	drainLock := queue.NewDrainLock(redisStore.Client(), time.Minute)
	drainer := queue.NewDrainer(pgStore, deliverer, drainLock, logger).
		WithBatchSize(cfg.DrainBatchSize).
		WithConcurrency(cfg.DrainConcurrency).
		WithInterval(cfg.DrainInterval)

	drainCtx, stopDrainer := context.WithCancel(ctx)
	go drainer.Run(drainCtx)

	router := api.NewRouter(api.Deps{
		Events:     api.NewEventHandler(enqueuer),
		Deliveries: api.NewDeliveryHandler(pgStore),
		Ops:        api.NewOpsHandler(pgStore, registry, drainer),
		Intake:     api.NewIntakeHandler(cfg.VendorWebhookSecrets, logger),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopDrainer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
