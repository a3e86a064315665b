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

	"github.com/hibiken/asynq"

	"github.com/pawmart/pawmart/internal/app"
	"github.com/pawmart/pawmart/internal/auth"
	"github.com/pawmart/pawmart/internal/catalog"
	"github.com/pawmart/pawmart/internal/inventory"
	"github.com/pawmart/pawmart/internal/masterdata/suppliers"
	"github.com/pawmart/pawmart/internal/platform/cache"
	"github.com/pawmart/pawmart/internal/platform/db"
	"github.com/pawmart/pawmart/internal/purchasing"
	"github.com/pawmart/pawmart/internal/shared"
	"github.com/pawmart/pawmart/jobs"
)

func main() {
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

	projections := cache.NewCache(redisClient, cfg.CacheTTL)
	auditLogger := shared.NewAuditLogger(pool)

	queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, queue, projections, logger, inventory.ServiceConfig{
		DefaultLowStockThreshold: cfg.LowStockThreshold,
		ExpiryAlertWindow:        time.Duration(cfg.ExpiryAlertDays) * 24 * time.Hour,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService, catalogRepo)

	supplierRepo := suppliers.NewRepository(pool)
	supplierService := suppliers.NewService(supplierRepo)
	supplierHandler := suppliers.NewHandler(logger, supplierService)

	purchaseRepo := purchasing.NewRepository(pool)
	purchaseService := purchasing.NewService(purchaseRepo, inventoryService, supplierService, auditLogger, projections, logger)
	purchaseHandler := purchasing.NewHandler(logger, purchaseService)

	tokenStore := auth.NewTokenStore(redisClient, auth.NewRepository(pool), cfg.TokenTTL)
	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		AuthMiddleware:   auth.Middleware(tokenStore),
		InventoryHandler: inventoryHandler,
		PurchaseHandler:  purchaseHandler,
		SupplierHandler:  supplierHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
