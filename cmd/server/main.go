package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/api"
	"github.com/chris-hendrix/tripful-sub006/internal/config"
	"github.com/chris-hendrix/tripful-sub006/internal/db"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/metrics"
	"github.com/chris-hendrix/tripful-sub006/internal/notify"
	"github.com/chris-hendrix/tripful-sub006/internal/ratelimiter"
	"github.com/chris-hendrix/tripful-sub006/internal/repository"
	"github.com/chris-hendrix/tripful-sub006/internal/service"
	"github.com/chris-hendrix/tripful-sub006/internal/sms"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queue := jobqueue.NewClient(
		jobqueue.NewPgStore(pool),
		logger,
		m.QueueHooks(),
		jobqueue.Options{
			PollInterval:        cfg.PollInterval,
			MaintenanceInterval: cfg.MaintenanceInterval,
			CronTick:            cfg.CronTick,
		},
	)

	notifRepo := repository.NewPgNotificationRepository(pool)
	tripRepo := repository.NewPgTripRepository(pool)
	failureRepo := repository.NewPgDeadLetterRepository(pool)
	sender := sms.NewWebhookSender(cfg.SMSGatewayURL, cfg.SMSGatewayTimeout)
	limiter := ratelimiter.New(cfg.SendRateLimit)
	svc := service.NewNotificationService(notifRepo, tripRepo, queue, logger)

	// ---- queue workers ----
	workers := notify.Workers{
		Batch:            notify.NewBatchWorker(notifRepo, tripRepo, queue, logger, m.FanOutHooks()),
		EventReminders:   notify.NewEventReminderScanner(tripRepo, queue, logger),
		DailyItineraries: notify.NewDailyItineraryScanner(tripRepo, queue, logger),
		Deliver:          notify.NewDeliverWorker(sender, limiter, logger),
		DeadLetter:       notify.NewDeadLetterWorker(failureRepo, logger),
	}
	if err := notify.Register(ctx, queue, workers, notify.Config{
		RetryLimit:         cfg.RetryLimit,
		RetryDelay:         cfg.RetryDelay,
		RetryBackoff:       cfg.RetryBackoff,
		ExpireIn:           cfg.JobExpireIn,
		RetainFor:          cfg.JobRetainFor,
		BatchRetainFor:     cfg.BatchJobRetainFor,
		DeliverConcurrency: cfg.DeliverConcurrency,
		EventReminderCron:  cfg.EventReminderCron,
		DailyItineraryCron: cfg.DailyItineraryCron,
	}); err != nil {
		logger.Fatal("failed to register queue workers", zap.Error(err))
	}

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	queue.Start(workerCtx)
	logger.Info("queue workers started")

	// ---- HTTP server ----
	router := api.NewRouter(svc, queue, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal the worker slots, cron runner, and maintenance loop to stop.
	cancelWorkers()

	// 3. Wait for in-flight jobs to finish their current attempt.
	queue.Wait()

	logger.Info("server stopped cleanly")
}
