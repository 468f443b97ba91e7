package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/parceltrack/parceltrack/internal/app"
	"github.com/parceltrack/parceltrack/internal/deliveries"
	"github.com/parceltrack/parceltrack/internal/packages"
	"github.com/parceltrack/parceltrack/internal/platform/db"
	"github.com/parceltrack/parceltrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	packagesService := packages.NewService(packages.NewRepository(pool))
	deliveriesService := deliveries.NewService(deliveries.NewRepository(pool), packagesService, nil, logger)
	packagesService.SetDeliveryCloser(deliveriesService)

	notifyHandler := jobs.NewNotifyStatusHandler(nil, logger)
	staleHandler := jobs.NewStaleScanHandler(deliveriesService, cfg.StaleClaimAfter, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeNotifyStatus, Handler: notifyHandler.Handle},
			{Type: jobs.TaskTypeStaleScan, Handler: staleHandler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewStaleScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
