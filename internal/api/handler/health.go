package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler handles health and readiness endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - db: metadata database handle for readiness checks, nil to skip.
//
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health returns the liveness status of the service.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready reports whether the service can reach its metadata database. Load
// balancers route traffic only to ready instances.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
