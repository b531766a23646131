package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shiftline/shiftline/internal/app"
	"github.com/shiftline/shiftline/internal/approvals"
	"github.com/shiftline/shiftline/internal/invites"
	"github.com/shiftline/shiftline/internal/notify"
	"github.com/shiftline/shiftline/internal/observability"
	"github.com/shiftline/shiftline/internal/platform/cache"
	"github.com/shiftline/shiftline/internal/platform/db"
	"github.com/shiftline/shiftline/internal/reporting"
	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/shared"
	"github.com/shiftline/shiftline/internal/timeclock"
	"github.com/shiftline/shiftline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	dispatcher := notify.NewDispatcher(redisOpts)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("dispatcher close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	rosterRepo := roster.NewRepository(dbpool)
	rosterService := roster.NewService(rosterRepo, auditLogger, logger)
	rosterHandler := roster.NewHandler(logger, rosterService)

	invitesRepo := invites.NewRepository(dbpool)
	invitesService := invites.NewService(invitesRepo, metrics, logger, cfg.InviteTTL)
	invitesService.WithEvents(dispatcher)
	invitesHandler := invites.NewHandler(logger, invitesService)

	timeclockRepo := timeclock.NewRepository(dbpool)
	timeclockService := timeclock.NewService(timeclockRepo, timeclock.Policy{
		MaxShiftDuration:  cfg.MaxShiftDuration,
		ManualEntryWindow: cfg.ManualEntryWindow,
		SmallDeviation:    cfg.SmallDeviation,
	}, dispatcher, logger)
	timeclockHandler := timeclock.NewHandler(logger, timeclockService)

	pendingCounter := approvals.NewRedisPendingCounter(redisClient, cfg.PendingCountTTL)
	approvalsRepo := approvals.NewPGRepository(dbpool)
	approvalsService := approvals.NewService(approvalsRepo, dispatcher, pendingCounter, metrics, logger)
	approvalsHandler := approvals.NewHandler(logger, approvalsService)

	reportingRepo := reporting.NewPGRepository(dbpool)
	reportingService := reporting.NewService(reportingRepo, logger)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RosterHandler:    rosterHandler,
		InvitesHandler:   invitesHandler,
		TimeclockHandler: timeclockHandler,
		ApprovalsHandler: approvalsHandler,
		ReportingHandler: reportingHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
