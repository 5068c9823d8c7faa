package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quernlabs/quern/internal/service"
)

// EngineHandler handles committed query engine endpoints.
type EngineHandler struct {
	catalog *service.CatalogService
}

// NewEngineHandler creates a new engine handler.
// Parameters:
//   - catalog: engine catalog service instance.
//
// Returns:
//   - *EngineHandler: initialized handler.
func NewEngineHandler(catalog *service.CatalogService) *EngineHandler {
	return &EngineHandler{
		catalog: catalog,
	}
}

// ListEngines handles GET /api/v1/engines.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *EngineHandler) ListEngines(c *gin.Context) {
	ownerID := c.Query("owner_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	engines, err := h.catalog.ListEngines(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"engines": engines,
		"total":   len(engines),
	})
}

// GetEngine handles GET /api/v1/engines/:id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *EngineHandler) GetEngine(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Engine ID is required"})
		return
	}

	detail, err := h.catalog.GetEngine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}
