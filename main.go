package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"sale_sync/api"
	"sale_sync/internal/backend"
	"sale_sync/internal/config"
	"sale_sync/internal/queue"
	"sale_sync/internal/syncer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	storage, err := queue.NewFileStorage(cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to open queue storage", zap.String("dir", cfg.DataDir), zap.Error(err))
	}
	store := queue.NewStore(storage, logger, cfg.RetryCap)

	client := backend.NewClient(backend.Config{
		BaseURL:        cfg.BackendURL,
		APIKey:         cfg.BackendKey,
		SessionTimeout: cfg.SessionTimeout,
	}, logger)
	defer client.Close()

	coordinator := syncer.NewCoordinator(store, client, client, syncer.Options{
		Interval:    cfg.SyncInterval,
		SettleDelay: cfg.SettleDelay,
		MinSpacing:  cfg.MinDrainSpacing,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go coordinator.Run(ctx)

	r := gin.Default()
	api.InitRoutes(r, store, coordinator, logger)

	if err := r.Run(cfg.Addr); err != nil {
		panic(fmt.Errorf("error trying to start server: %v", err))
	}
}
