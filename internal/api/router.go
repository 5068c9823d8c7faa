package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quernlabs/quern/internal/api/handler"
	"github.com/quernlabs/quern/internal/api/middleware"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/service"
	"github.com/quernlabs/quern/internal/storage"
)

// RouterDeps carries the services the HTTP surface is built from.
type RouterDeps struct {
	Orchestrator *service.Orchestrator
	Catalog      *service.CatalogService
	Registry     *service.EmbeddingRegistry
	Storage      storage.ObjectStorage
	DB           *gorm.DB
	Logger       *logger.Logger
	CORS         middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	jobHandler := handler.NewJobHandler(deps.Orchestrator)
	engineHandler := handler.NewEngineHandler(deps.Catalog)
	documentHandler := handler.NewDocumentHandler(deps.Storage)
	providerHandler := handler.NewProviderHandler(deps.Registry)
	dashboardHandler := handler.NewDashboardHandler()

	// Health checks
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// Ops dashboard
	r.GET("/admin", dashboardHandler.Page)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Build submission
		v1.POST("/engines", jobHandler.BuildEngine)

		// Job ledger
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.POST("/jobs/:id/cancel", jobHandler.CancelJob)

		// Committed engines
		v1.GET("/engines", engineHandler.ListEngines)
		v1.GET("/engines/:id", engineHandler.GetEngine)

		// Document uploads
		v1.POST("/documents", documentHandler.UploadDocument)

		// Embedding providers
		v1.GET("/providers", providerHandler.ListProviders)
	}

	return r
}
