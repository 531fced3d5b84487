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

	"github.com/fabrica-erp/fabrica-erp/internal/app"
	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/observability"
	"github.com/fabrica-erp/fabrica-erp/internal/orders"
	"github.com/fabrica-erp/fabrica-erp/internal/platform/cache"
	"github.com/fabrica-erp/fabrica-erp/internal/platform/db"
	"github.com/fabrica-erp/fabrica-erp/internal/products"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
	"github.com/fabrica-erp/fabrica-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	productsRepo := products.NewRepository(pool)

	ledger := materials.NewLedgerWriter()
	materialsRepo := materials.NewRepository(pool, cfg.TxTimeout)
	statusCache := materials.NewStatusCache(redisClient, cfg.StatusCacheTTL)
	materialsService := materials.NewService(materialsRepo, productsRepo, ledger, statusCache, auditLogger)
	materialsHandler := materials.NewHandler(logger, materialsService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	ordersRepo := orders.NewRepository(pool, cfg.TxTimeout)
	ordersService := orders.NewService(ordersRepo, ledger, idempotency, auditLogger, metrics, queueClient, logger)
	ordersHandler := orders.NewHandler(logger, ordersService, materialsService)

	jobsHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    ordersHandler,
		MaterialsHandler: materialsHandler,
		JobsHandler:      jobsHandler,
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
