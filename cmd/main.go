package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/config"
	httpapi "storefront/internal/http"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/storage"

	_ "storefront/docs"
)

// @title Storefront API
// @version 1.0
// @description Product catalog, shopping cart and checkout.
// @BasePath /
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	medium, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open cart storage: %w", err)
	}
	defer func() {
		if err := medium.Close(); err != nil {
			log.Warn("close cart storage", zap.Error(err))
		}
	}()

	store := repository.NewMemoryStore()
	ordersRepo := repository.NewMemoryOrders(store)
	tx := repository.NewMemoryTx(store)
	if cfg.SeedCatalog {
		n, err := repository.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		log.Info("catalog seeded", zap.Int("products", n))
	}

	m := metrics.New()
	productsSvc := service.NewProductService(store)
	engine := cart.NewEngine(ctx, productsSvc, medium,
		cart.WithLogger(log),
		cart.WithKey(cfg.Cart.Key),
		cart.WithRecorder(m),
	)
	ordersSvc := service.NewOrderService(store, ordersRepo, tx, engine, log)

	srv := httpapi.NewServer(productsSvc, ordersSvc, engine, log, m)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", httpServer.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Int("cart_items", engine.DistinctItems()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	// корзина могла остаться несохранённой после сбоя хранилища
	if err := engine.Flush(shutdownCtx); err != nil {
		log.Error("flush cart", zap.Error(err))
	}
	return nil
}
