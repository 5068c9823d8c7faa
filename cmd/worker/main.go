package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/repository"
	"github.com/quernlabs/quern/internal/service"
	"github.com/quernlabs/quern/internal/storage"
)

// The worker binary executes exactly one build job from the ledger and exits,
// so deployments can run builds as one-shot jobs instead of inside the API
// process. Exit code 0 means the job succeeded; anything else left the job
// failed in the ledger.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "quern-worker",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	jobID := flag.String("job", "", "ID of the pending build job to execute")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *jobID == "" {
		appLogger.Fatal("Flag -job is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		"job_id": *jobID,
	}).Info("Starting build worker")

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

	// Initialize S3-compatible storage (supports R2, S3, MinIO)
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

	// Initialize embedding providers
	registry, err := service.NewEmbeddingRegistry(&service.EmbeddingRegistryConfig{
		Embeddings:  cfg.Embeddings.Providers,
		DefaultName: cfg.Embeddings.Default,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize embedding providers")
	}

	// Initialize the build pipeline
	indexBuilder := service.NewIndexBuilder(qdrantRepo, service.IndexBuilderConfig{
		CollectionPrefix: cfg.Qdrant.CollectionPrefix,
		PollInterval:     cfg.Index.PollInterval,
		PublishTimeout:   cfg.Index.PublishTimeout,
		UpsertBatchSize:  cfg.Index.UpsertBatchSize,
	})
	pipeline := service.NewBuildPipeline(
		jobRepo,
		engineRepo,
		service.NewIngestionService(objectStorage),
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

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	// Fetch and run the job
	job, err := jobRepo.GetByID(ctx, *jobID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load job")
	}

	if err := pipeline.Run(ctx, job); err != nil {
		appLogger.WithError(err).Fatal("Build failed")
	}

	// Re-read the ledger for the committed result
	done, err := jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to re-read job")
	}
	appLogger.WithFields(logger.Fields{
		"job_id":    done.ID,
		"status":    string(done.Status),
		"engine_id": done.ResultEngineID,
	}).Info("Build completed")
}
