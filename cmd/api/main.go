package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quernlabs/quern/internal/api"
	"github.com/quernlabs/quern/internal/api/middleware"
	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/repository"
	"github.com/quernlabs/quern/internal/service"
	"github.com/quernlabs/quern/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "quern-api",
	})
	logger.SetDefaultLogger(appLogger)

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	engineRepo := repository.NewEngineRepository(db)
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	// Initialize storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Ensure bucket exists
	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize embedding providers
	registry, err := service.NewEmbeddingRegistry(&service.EmbeddingRegistryConfig{
		Embeddings:  cfg.Embeddings.Providers,
		DefaultName: cfg.Embeddings.Default,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize embedding providers")
	}
	if registry.Count() == 0 {
		appLogger.Fatal("No usable embedding provider configured")
	}

	// Initialize build services
	indexBuilder := service.NewIndexBuilder(qdrantRepo, service.IndexBuilderConfig{
		CollectionPrefix: cfg.Qdrant.CollectionPrefix,
		PollInterval:     cfg.Index.PollInterval,
		PublishTimeout:   cfg.Index.PublishTimeout,
		UpsertBatchSize:  cfg.Index.UpsertBatchSize,
	})
	ingestionService := service.NewIngestionService(objectStorage)
	pipeline := service.NewBuildPipeline(
		jobRepo,
		engineRepo,
		ingestionService,
		registry,
		indexBuilder,
		appLogger,
		&service.BuildPipelineConfig{
			Workers:      cfg.Pipeline.Workers,
			BatchSize:    cfg.Pipeline.BatchSize,
			MaxChunkSize: cfg.Pipeline.MaxChunkSize,
			ChunkOverlap: cfg.Pipeline.ChunkOverlap,
			MaxAttempts:  cfg.Pipeline.MaxAttempts,
			RetryDelay:   cfg.Pipeline.RetryDelay,
		},
	)

	// Builds outlive their HTTP requests; cancelling buildCtx on shutdown
	// makes every in-flight build reach a terminal ledger state fast.
	buildCtx, stopBuilds := context.WithCancel(context.Background())
	defer stopBuilds()

	launcher := service.NewGoroutineLauncher(buildCtx, pipeline, jobRepo, appLogger)
	orchestrator := service.NewOrchestrator(jobRepo, engineRepo, registry, launcher, appLogger)
	catalog := service.NewCatalogService(engineRepo, appLogger)

	// Fail jobs orphaned by a previous process before accepting new ones.
	watchdog := service.NewWatchdog(jobRepo, cfg.Watchdog.HeartbeatTimeout, cfg.Watchdog.ScanInterval, appLogger)
	if err := watchdog.SweepStartup(ctx); err != nil {
		appLogger.WithError(err).Fatal("Startup sweep failed")
	}
	go watchdog.Run(buildCtx)

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Orchestrator: orchestrator,
		Catalog:      catalog,
		Registry:     registry,
		Storage:      objectStorage,
		DB:           db,
		Logger:       appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Cancel in-flight builds so they record a terminal state, then give the
	// ledger writes a moment to land.
	stopBuilds()
	done := make(chan struct{})
	go func() {
		launcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLogger.Warn("Timed out waiting for in-flight builds")
	}

	appLogger.Info("Server exited")
}
