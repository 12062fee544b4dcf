package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/app"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/costing"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/ledger"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/observability"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/payables"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/cache"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/db"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/purchases"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/status"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/jobs"
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

	// The lifecycle and role tables are edited independently; refuse to
	// start when they diverge.
	if err := status.SelfCheck(); err != nil {
		logger.Error("status policy self check", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, unit-cost reads will bypass the cache", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	payablesRepo := payables.NewRepository(pool)
	payablesService := payables.NewService(payablesRepo, auditLogger)
	payablesHandler := payables.NewHandler(logger, payablesService, validate)

	costingRepo := costing.NewRepository(pool)
	costingService := costing.NewService(costingRepo, redisClient, logger)
	costingService.WithTTL(cfg.CostCacheTTL)
	costingHandler := costing.NewHandler(logger, costingService)

	purchasesRepo := purchases.NewRepository(pool)
	purchasesService := purchases.NewService(purchasesRepo, payablesService, ledgerService, costingService, auditLogger, metrics, logger)
	purchasesHandler := purchases.NewHandler(logger, purchasesService, validate, shared.NewIdempotencyStore(pool))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("close jobs client", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		PurchasesHandler: purchasesHandler,
		PayablesHandler:  payablesHandler,
		LedgerHandler:    ledgerHandler,
		CostingHandler:   costingHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
