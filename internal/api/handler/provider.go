package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quernlabs/quern/internal/service"
)

// ProviderHandler exposes the configured embedding providers so clients can
// discover valid llm_type values before submitting a build.
type ProviderHandler struct {
	registry *service.EmbeddingRegistry
}

// NewProviderHandler creates a new provider handler.
// Parameters:
//   - registry: embedding provider registry instance.
//
// Returns:
//   - *ProviderHandler: initialized handler.
func NewProviderHandler(registry *service.EmbeddingRegistry) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
	}
}

// ProviderInfo describes one configured embedding provider. Credentials are
// never included.
type ProviderInfo struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	IsDefault  bool   `json:"is_default"`
}

// ListProviders handles GET /api/v1/providers.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	names := h.registry.Names()
	defaultName := h.registry.DefaultName()

	providers := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		cfg, ok := h.registry.GetConfig(name)
		if !ok {
			continue
		}
		providers = append(providers, ProviderInfo{
			Name:       name,
			Provider:   cfg.Provider,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			IsDefault:  name == defaultName,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"providers": providers,
		"default":   defaultName,
	})
}
