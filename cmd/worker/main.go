package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica-erp/internal/app"
	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/observability"
	"github.com/fabrica-erp/fabrica-erp/internal/orders"
	"github.com/fabrica-erp/fabrica-erp/internal/platform/db"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
	"github.com/fabrica-erp/fabrica-erp/jobs"
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	ledger := materials.NewLedgerWriter()
	ordersRepo := orders.NewRepository(pool, cfg.TxTimeout)
	// The worker never enqueues retries for itself; failures propagate to
	// asynq's own retry with backoff.
	ordersService := orders.NewService(ordersRepo, ledger, nil, auditLogger, metrics, nil, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCompensationRestore, Handler: jobs.NewCompensationRestoreHandler(ordersService, logger)},
			{Type: jobs.TaskReconcileSweep, Handler: jobs.NewReconcileSweepHandler(ordersService, cfg.ReconcileSweepAge)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotency, 24*time.Hour)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: jobs.NewReconcileSweepTask()},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
