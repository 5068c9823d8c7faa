package main

import (
	"context"
	"flag"
	"io/fs"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/repository"
	"github.com/quernlabs/quern/internal/service"
	"github.com/quernlabs/quern/internal/storage"
)

// The ingest binary seeds a corpus from a local directory: every supported
// document under -dir is uploaded to object storage, and with -submit each
// upload also becomes a build job named after the file. Without -submit the
// printed document refs can be handed to the build API later.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "quern-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	dir := flag.String("dir", "", "Local directory to load documents from")
	limit := flag.Int("limit", 0, "Maximum number of files to load (0 = no limit)")
	submit := flag.Bool("submit", false, "Submit a build job for each uploaded document")
	owner := flag.String("owner", "cli", "Owner ID recorded on submitted builds")
	llmType := flag.String("llm", "", "Embedding provider for submitted builds (empty = default)")
	public := flag.Bool("public", false, "Mark built engines as public")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *dir == "" {
		appLogger.Fatal("Flag -dir is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		"dir":    *dir,
		"limit":  *limit,
		"submit": *submit,
	}).Info("Starting corpus load")

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

	// Ensure bucket exists
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// The build stack is only wired when uploads should turn into jobs.
	var orchestrator *service.Orchestrator
	var launcher *service.GoroutineLauncher
	if *submit {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}

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

		registry, err := service.NewEmbeddingRegistry(&service.EmbeddingRegistryConfig{
			Embeddings:  cfg.Embeddings.Providers,
			DefaultName: cfg.Embeddings.Default,
			Logger:      appLogger,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize embedding providers")
		}

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
		launcher = service.NewGoroutineLauncher(ctx, pipeline, jobRepo, appLogger)
		orchestrator = service.NewOrchestrator(jobRepo, engineRepo, registry, launcher, appLogger)
	}

	var uploaded, skipped, failed, submitted, conflicts int
	walkErr := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if !service.IsSupportedFormat(path) {
			skipped++
			return nil
		}
		if *limit > 0 && uploaded >= *limit {
			return fs.SkipAll
		}

		ref, err := uploadFile(ctx, objectStorage, path, d)
		if err != nil {
			appLogger.WithError(err).WithField("path", path).Error("Upload failed")
			failed++
			return nil
		}
		uploaded++
		appLogger.WithFields(logger.Fields{
			"path":         path,
			"document_ref": ref,
		}).Info("Document uploaded")

		if orchestrator == nil {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		job, err := orchestrator.Submit(ctx, &service.BuildRequest{
			DocumentRef: ref,
			EngineName:  name,
			LLMType:     *llmType,
			OwnerID:     *owner,
			IsPublic:    *public,
		})
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				appLogger.WithError(err).WithField("engine_name", name).Warn("Build skipped")
				conflicts++
				return nil
			}
			appLogger.WithError(err).WithField("engine_name", name).Error("Build submission failed")
			failed++
			return nil
		}
		submitted++
		appLogger.WithFields(logger.Fields{
			"job_id":      job.ID,
			"engine_name": name,
		}).Info("Build submitted")
		return nil
	})
	if walkErr != nil {
		appLogger.WithError(walkErr).Fatal("Corpus walk failed")
	}

	// Submitted builds run on launcher goroutines; wait so the ledger reaches
	// a terminal state for each before the process exits.
	if launcher != nil {
		appLogger.WithField("count", submitted).Info("Waiting for builds to finish")
		launcher.Wait()
	}

	appLogger.WithFields(logger.Fields{
		"uploaded":  uploaded,
		"skipped":   skipped,
		"failed":    failed,
		"submitted": submitted,
		"conflicts": conflicts,
	}).Info("Corpus load completed")
}

// uploadFile streams one local file into object storage under a fresh
// documents/ key, mirroring what the upload endpoint produces.
func uploadFile(ctx context.Context, store storage.ObjectStorage, path string, d fs.DirEntry) (string, error) {
	info, err := d.Info()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ext := filepath.Ext(path)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := "documents/" + uuid.New().String() + ext
	if err := store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return "", err
	}
	return key, nil
}
