package api

import (
	"errors"
	"net/http"

	"sale_sync/internal/queue"
	"sale_sync/internal/syncer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// saleHandler holds the queue store and coordinator and implements HTTP
// handlers for the sale queue operations.
type saleHandler struct {
	store       *queue.Store
	coordinator *syncer.Coordinator
	logger      *zap.Logger
}

// NewSaleHandler creates a new sale queue handler.
func NewSaleHandler(store *queue.Store, coordinator *syncer.Coordinator, logger *zap.Logger) *saleHandler {
	return &saleHandler{
		store:       store,
		coordinator: coordinator,
		logger:      logger,
	}
}

// handleEnqueueSale handles the POST /sales endpoint. The sale is accepted
// optimistically: the response confirms only that the intent was recorded
// locally, delivery to the backend happens asynchronously.
func (h *saleHandler) handleEnqueueSale(ctx *gin.Context) {
	var req queue.SalePayload

	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if req.ProductID == "" || req.ProductName == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "product_id and product_name are required"})
		return
	}
	if req.Quantity <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be greater than zero"})
		return
	}
	if req.SalePrice < 0 || req.CostPrice < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "prices must not be negative"})
		return
	}

	id, err := h.store.Enqueue(req)
	if err != nil {
		// Persistence is best effort; the intent is still held in memory
		// for this session, so the producer flow is not interrupted.
		h.logger.Error("sale intent persisted in memory only", zap.String("intent_id", id), zap.Error(err))
	}

	ctx.JSON(http.StatusAccepted, gin.H{"id": id, "status": queue.StatusPending})
}

// handleListQueue handles the GET /sales/queue endpoint. It exposes every
// record including exhausted ones, for inspection.
func (h *saleHandler) handleListQueue(ctx *gin.Context) {
	intents := h.store.List()
	if intents == nil {
		intents = []queue.SaleIntent{}
	}
	ctx.JSON(http.StatusOK, gin.H{"intents": intents})
}

// handleStats handles the GET /sales/stats endpoint.
func (h *saleHandler) handleStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.coordinator.Stats())
}

// handleSyncStatus handles the GET /sales/sync-status endpoint.
func (h *saleHandler) handleSyncStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.coordinator.SyncStatus())
}

// handleTriggerSync handles the POST /sales/sync endpoint, the manual drain
// trigger.
func (h *saleHandler) handleTriggerSync(ctx *gin.Context) {
	result, err := h.coordinator.Drain(ctx.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrSyncInFlight):
			ctx.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		case errors.Is(err, syncer.ErrSyncDebounced):
			ctx.JSON(http.StatusTooManyRequests, gin.H{"error": "sync requested too soon, try again later"})
		default:
			h.logger.Error("manual sync failed", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		}
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// handlePurgeCompleted handles the DELETE /sales/completed endpoint.
func (h *saleHandler) handlePurgeCompleted(ctx *gin.Context) {
	removed := h.store.PurgeCompleted()
	ctx.JSON(http.StatusOK, gin.H{"removed": removed})
}

// handleResetQueue handles the DELETE /sales/queue endpoint. Destructive:
// every record is dropped, including ones never delivered to the backend.
func (h *saleHandler) handleResetQueue(ctx *gin.Context) {
	h.logger.Warn("sale queue reset requested")
	h.store.Reset()
	ctx.JSON(http.StatusOK, gin.H{"reset": true})
}
