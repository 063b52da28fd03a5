package api

import (
	"net/http"

	"sale_sync/internal/queue"
	"sale_sync/internal/syncer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InitRoutes registers all sale queue endpoints on the given Gin engine.
// The store and coordinator are injected so tests can run the full surface
// against in-memory storage and a stub backend.
func InitRoutes(e *gin.Engine, store *queue.Store, coordinator *syncer.Coordinator, logger *zap.Logger) {
	saleHandler := NewSaleHandler(store, coordinator, logger)

	e.POST("/sales", saleHandler.handleEnqueueSale)
	e.GET("/sales/queue", saleHandler.handleListQueue)
	e.GET("/sales/stats", saleHandler.handleStats)
	e.GET("/sales/sync-status", saleHandler.handleSyncStatus)
	e.POST("/sales/sync", saleHandler.handleTriggerSync)
	e.DELETE("/sales/completed", saleHandler.handlePurgeCompleted)
	e.DELETE("/sales/queue", saleHandler.handleResetQueue)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
