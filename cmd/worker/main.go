package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/shiftline/shiftline/internal/app"
	"github.com/shiftline/shiftline/internal/invites"
	jobmetrics "github.com/shiftline/shiftline/internal/jobs"
	"github.com/shiftline/shiftline/internal/observability"
	"github.com/shiftline/shiftline/internal/platform/db"
	"github.com/shiftline/shiftline/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	invitesRepo := invites.NewRepository(pool)
	invitesService := invites.NewService(invitesRepo, metrics, logger, cfg.InviteTTL)

	taskMetrics := jobmetrics.NewMetrics(nil)
	notifications := jobs.NewNotificationJob(logger, taskMetrics)
	expireJob := jobs.NewExpireInvitesJob(invitesService, logger, taskMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifyInvite, Handler: notifications.HandleInvite},
			{Type: jobs.TaskNotifySubmission, Handler: notifications.HandleSubmission},
			{Type: jobs.TaskNotifyResolution, Handler: notifications.HandleResolution},
			{Type: jobs.TaskExpireInvites, Handler: expireJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewExpireInvitesTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
