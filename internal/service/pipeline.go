package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/repository"
)

// cleanupTimeout bounds best-effort artifact reclamation after a failed build.
const cleanupTimeout = 30 * time.Second

// JobLedger is the slice of the job ledger the pipeline drives. Implemented
// by repository.JobRepository.
type JobLedger interface {
	MarkActive(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id, engineID string) error
	MarkFailed(ctx context.Context, id string, kind apperrors.Kind, message string) error
	Heartbeat(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// MetadataStore is the slice of the metadata store the pipeline writes.
// Implemented by repository.EngineRepository.
type MetadataStore interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	CommitChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	CommitQueryEngine(ctx context.Context, engine *domain.QueryEngine) error
	DeleteBuildArtifacts(ctx context.Context, engineID string) error
}

// Ingestor fetches a source document and extracts its plain text.
// Implemented by IngestionService.
type Ingestor interface {
	Ingest(ctx context.Context, documentRef string) (*ExtractedDocument, error)
}

// ProviderResolver resolves an llm_type to its embedding provider.
// Implemented by EmbeddingRegistry.
type ProviderResolver interface {
	GetProvider(name string) (EmbeddingProvider, bool)
}

// BuildPipelineConfig holds tuning for build execution.
type BuildPipelineConfig struct {
	Workers      int
	BatchSize    int
	MaxChunkSize int
	ChunkOverlap int
	MaxAttempts  int
	RetryDelay   time.Duration
}

// BuildPipeline executes a build-query-engine job end to end: ingest the
// source document, chunk it, embed every chunk, build and publish the vector
// index, then commit the metadata. The query engine record is the single
// commit point: nothing written earlier is visible until it exists, so a
// failed build never leaves a partially-built engine behind.
type BuildPipeline struct {
	ledger    JobLedger
	store     MetadataStore
	ingestion Ingestor
	providers ProviderResolver
	indexer   *IndexBuilder
	logger    *logger.Logger
	cfg       BuildPipelineConfig
}

// NewBuildPipeline creates a new build pipeline.
func NewBuildPipeline(
	ledger JobLedger,
	store MetadataStore,
	ingestion Ingestor,
	providers ProviderResolver,
	indexer *IndexBuilder,
	log *logger.Logger,
	cfg *BuildPipelineConfig,
) *BuildPipeline {
	c := *cfg
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = 1000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		c.ChunkOverlap = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}

	return &BuildPipeline{
		ledger:    ledger,
		store:     store,
		ingestion: ingestion,
		providers: providers,
		indexer:   indexer,
		logger:    log,
		cfg:       c,
	}
}

// log returns a logger from context if available, otherwise the default one
func (p *BuildPipeline) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Run executes the build for one job. It claims the job by transitioning it
// to active, drives the pipeline, and records the terminal outcome in the
// ledger. The returned error mirrors what the ledger already recorded; a
// claim failure means another worker owns the job and nothing was touched.
func (p *BuildPipeline) Run(ctx context.Context, job *domain.Job) error {
	ctx = logger.SetComponent(ctx, "pipeline")
	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.SetOwnerID(ctx, job.OwnerID)

	if err := p.ledger.MarkActive(ctx, job.ID); err != nil {
		p.log(ctx).WithError(err).Warn("Could not claim job, skipping")
		return err
	}

	engineID := uuid.New().String()
	ctx = logger.SetEngineID(ctx, engineID)

	start := time.Now()
	p.log(ctx).WithFields(logger.Fields{
		"engine_name":  job.EngineName,
		"document_ref": job.DocumentRef,
		"llm_type":     job.LLMType,
	}).Info("Starting build")

	result, err := p.build(ctx, job, engineID)
	if err != nil {
		p.failJob(ctx, job.ID, engineID, err)
		return err
	}

	if err := p.ledger.MarkSucceeded(ctx, job.ID, engineID); err != nil {
		// The engine is committed and queryable; only the ledger close was
		// lost, e.g. to a watchdog that fired during the final stage.
		p.log(ctx).WithError(err).Error("Engine committed but job could not be marked succeeded")
		return err
	}

	p.log(ctx).WithFields(logger.Fields{
		"chunks":    result.chunkCount,
		"dimension": result.dimension,
		"index_ref": result.indexRef,
		"duration":  time.Since(start).String(),
	}).Info("Build succeeded")

	return nil
}

type buildResult struct {
	chunkCount int
	dimension  int
	indexRef   string
}

// build runs the pipeline stages in order. Cancellation is cooperative: the
// worker checks the ledger flag between stages, after each embedding batch,
// and on every publish poll.
func (p *BuildPipeline) build(ctx context.Context, job *domain.Job, engineID string) (*buildResult, error) {
	provider, ok := p.providers.GetProvider(job.LLMType)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindValidation, "unsupported llm_type %q", job.LLMType)
	}

	// Ingest
	sctx := logger.SetStage(ctx, "ingest")
	if err := p.checkpoint(sctx, job.ID); err != nil {
		return nil, err
	}
	var extracted *ExtractedDocument
	err := RetryWithBackoff(sctx, func() error {
		var ierr error
		extracted, ierr = p.ingestion.Ingest(sctx, job.DocumentRef)
		return ierr
	}, p.cfg.MaxAttempts, p.cfg.RetryDelay)
	if err != nil {
		return nil, err
	}

	documentID := uuid.New().String()
	doc := &domain.Document{
		ID:            documentID,
		QueryEngineID: engineID,
		SourceRef:     job.DocumentRef,
		ContentType:   extracted.ContentType,
		Status:        domain.DocumentStatusIngested,
		SizeBytes:     extracted.SizeBytes,
	}
	if err := p.store.CreateDocument(sctx, doc); err != nil {
		return nil, err
	}

	// Chunk
	sctx = logger.SetStage(ctx, "chunk")
	if err := p.checkpoint(sctx, job.ID); err != nil {
		return nil, err
	}
	texts, err := ChunkText(extracted.Text, p.cfg.MaxChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, apperrors.New(apperrors.KindUnsupportedFormat, "document contains no extractable text")
	}
	logger.CtxInfo(sctx, "Chunked document: chunks=%d, max_chunk_size=%d, overlap=%d",
		len(texts), p.cfg.MaxChunkSize, p.cfg.ChunkOverlap)

	// Embed
	sctx = logger.SetStage(ctx, "embed")
	if err := p.checkpoint(sctx, job.ID); err != nil {
		return nil, err
	}
	vectors, err := p.embedAll(sctx, job.ID, provider, texts)
	if err != nil {
		return nil, err
	}

	// Build index
	sctx = logger.SetStage(ctx, "index")
	if err := p.checkpoint(sctx, job.ID); err != nil {
		return nil, err
	}
	collection, err := p.indexer.CreateIndex(sctx, engineID, provider.Dimensions())
	if err != nil {
		return nil, err
	}

	points := make([]repository.ChunkPoint, len(texts))
	for i := range texts {
		points[i] = repository.ChunkPoint{
			Ordinal:    uint64(i),
			Vector:     vectors[i],
			DocumentID: documentID,
			Text:       texts[i],
		}
	}
	if err := p.indexer.Upsert(sctx, collection, points); err != nil {
		return nil, err
	}

	// Publish
	sctx = logger.SetStage(ctx, "publish")
	indexRef, err := p.indexer.Publish(sctx, collection, func(hctx context.Context) error {
		return p.checkpoint(hctx, job.ID)
	})
	if err != nil {
		return nil, err
	}

	// Commit metadata; the engine record is written last
	sctx = logger.SetStage(ctx, "commit")
	if err := p.checkpoint(sctx, job.ID); err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(texts))
	for i := range texts {
		chunks[i] = domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Ordinal:    i,
			Text:       texts[i],
			Embedding:  domain.Vector(vectors[i]),
		}
	}
	if err := p.store.CommitChunks(sctx, documentID, chunks); err != nil {
		return nil, err
	}

	engine := &domain.QueryEngine{
		ID:         engineID,
		OwnerID:    job.OwnerID,
		Name:       job.EngineName,
		LLMType:    job.LLMType,
		IsPublic:   job.IsPublic,
		IndexRef:   indexRef,
		Dimension:  provider.Dimensions(),
		ChunkCount: len(chunks),
	}
	if err := p.store.CommitQueryEngine(sctx, engine); err != nil {
		return nil, err
	}

	return &buildResult{
		chunkCount: len(chunks),
		dimension:  provider.Dimensions(),
		indexRef:   indexRef,
	}, nil
}

// checkpoint records liveness and honors a pending cancellation request. A
// rejected heartbeat means the worker lost ownership of the job and must stop.
func (p *BuildPipeline) checkpoint(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cancelled, err := p.ledger.CancelRequested(ctx, jobID)
	if err != nil {
		return err
	}
	if cancelled {
		return apperrors.New(apperrors.KindCancelled, "build cancelled by request")
	}

	return p.ledger.Heartbeat(ctx, jobID)
}

// embedAll embeds every chunk text, fanning batches out to a bounded worker
// pool. Vectors land in slots indexed by ordinal, so chunk order is preserved
// no matter how batches complete. The first error cancels outstanding work.
func (p *BuildPipeline) embedAll(ctx context.Context, jobID string, provider EmbeddingProvider, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	pool, err := ants.NewPool(p.cfg.Workers)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "failed to create worker pool", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(texts) && runCtx.Err() == nil; start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchStart, batchEnd := start, end

		wg.Add(1)
		if submitErr := pool.Submit(func() {
			defer wg.Done()

			if runCtx.Err() != nil {
				return
			}

			batch := texts[batchStart:batchEnd]
			var batchVectors [][]float32
			err := RetryWithBackoff(runCtx, func() error {
				var berr error
				batchVectors, berr = provider.EmbedBatch(runCtx, batch)
				return berr
			}, p.cfg.MaxAttempts, p.cfg.RetryDelay)
			if err != nil {
				fail(err)
				return
			}

			for i, vec := range batchVectors {
				if len(vec) != provider.Dimensions() {
					fail(apperrors.Newf(apperrors.KindExternalService,
						"embedding dimension mismatch at ordinal %d: got %d, expected %d",
						batchStart+i, len(vec), provider.Dimensions()))
					return
				}
				vectors[batchStart+i] = vec
			}

			// Cancellation is observed after every completed batch
			if err := p.checkpoint(runCtx, jobID); err != nil {
				fail(err)
			}
		}); submitErr != nil {
			wg.Done()
			fail(apperrors.Wrap(apperrors.KindInternal, "failed to submit embedding batch", submitErr))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// failJob records the terminal failure and reclaims build artifacts on a
// best-effort basis. The build context may already be cancelled, which is
// often the very reason the build failed, so the ledger write and the
// reclamation run on a fresh bounded context.
func (p *BuildPipeline) failJob(ctx context.Context, jobID, engineID string, cause error) {
	kind := apperrors.KindOf(cause)
	message := apperrors.MessageOf(cause)

	p.log(ctx).WithFields(logger.Fields{
		"error_kind": string(kind),
	}).WithError(cause).Error("Build failed")

	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancelCleanup()

	if err := p.ledger.MarkFailed(cleanupCtx, jobID, kind, message); err != nil {
		p.log(ctx).WithError(err).Error("Failed to record job failure")
	}

	if err := p.store.DeleteBuildArtifacts(cleanupCtx, engineID); err != nil {
		logger.CtxWarn(ctx, "Failed to reclaim build artifacts: engine_id=%s, error=%v", engineID, err)
	}
	if err := p.indexer.Teardown(cleanupCtx, p.indexer.CollectionName(engineID)); err != nil {
		logger.CtxWarn(ctx, "Failed to tear down index: engine_id=%s, error=%v", engineID, err)
	}
}
