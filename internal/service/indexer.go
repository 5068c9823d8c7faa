package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/repository"
)

// VectorIndexClient is the narrow surface of the vector index service the
// builder needs. Implemented by repository.QdrantRepository.
type VectorIndexClient interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	CollectionStatus(ctx context.Context, name string) (repository.IndexStatus, error)
	UpsertChunks(ctx context.Context, collection string, points []repository.ChunkPoint) error
	DeleteCollection(ctx context.Context, name string) error
}

// IndexBuilderConfig holds tuning for index creation and publishing.
type IndexBuilderConfig struct {
	CollectionPrefix string
	PollInterval     time.Duration
	PublishTimeout   time.Duration
	UpsertBatchSize  int
}

// IndexBuilder creates, populates, and publishes one vector index per query
// engine. Creation and publishing are weakly synchronous: the service accepts
// the request immediately and readiness is polled.
type IndexBuilder struct {
	client VectorIndexClient
	cfg    IndexBuilderConfig
}

// NewIndexBuilder creates a new index builder.
func NewIndexBuilder(client VectorIndexClient, cfg IndexBuilderConfig) *IndexBuilder {
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "engine"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Minute
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	return &IndexBuilder{client: client, cfg: cfg}
}

// CollectionName returns the index handle for an engine id.
func (b *IndexBuilder) CollectionName(engineID string) string {
	return fmt.Sprintf("%s_%s", b.cfg.CollectionPrefix, engineID)
}

// CreateIndex provisions an empty index for the engine and returns its handle.
func (b *IndexBuilder) CreateIndex(ctx context.Context, engineID string, dimension int) (string, error) {
	collection := b.CollectionName(engineID)
	if err := b.client.CreateCollection(ctx, collection, dimension); err != nil {
		return "", err
	}
	logger.CtxInfo(ctx, "Created vector index: collection=%s, dimension=%d", collection, dimension)
	return collection, nil
}

// Upsert writes chunk points into the index in bounded batches.
func (b *IndexBuilder) Upsert(ctx context.Context, collection string, points []repository.ChunkPoint) error {
	for start := 0; start < len(points); start += b.cfg.UpsertBatchSize {
		end := start + b.cfg.UpsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := b.client.UpsertChunks(ctx, collection, points[start:end]); err != nil {
			return err
		}
		logger.CtxDebug(ctx, "Upserted index batch: collection=%s, from=%d, to=%d", collection, start, end)
	}
	return nil
}

// Publish waits until the index reports ready and returns the endpoint
// reference. Still-provisioning is a normal in-progress state until the
// configured timeout elapses. The heartbeat callback runs once per poll so
// long provisioning waits stay visible to the watchdog; a heartbeat error
// aborts the wait.
func (b *IndexBuilder) Publish(ctx context.Context, collection string, heartbeat func(context.Context) error) (string, error) {
	deadline := time.Now().Add(b.cfg.PublishTimeout)

	for {
		status, err := b.client.CollectionStatus(ctx, collection)
		if err != nil {
			return "", err
		}

		switch status {
		case repository.IndexStatusReady:
			logger.CtxInfo(ctx, "Index published: collection=%s", collection)
			return collection, nil
		case repository.IndexStatusFailed:
			return "", apperrors.Newf(apperrors.KindExternalService, "index build failed for collection %q", collection)
		}

		if heartbeat != nil {
			if err := heartbeat(ctx); err != nil {
				return "", err
			}
		}

		if time.Now().After(deadline) {
			return "", apperrors.Newf(apperrors.KindTimeout, "index provisioning timed out after %s", b.cfg.PublishTimeout)
		}

		timer := time.NewTimer(b.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// Teardown removes the index backing a failed or abandoned build.
// Best-effort; the error is returned for logging only.
func (b *IndexBuilder) Teardown(ctx context.Context, collection string) error {
	return b.client.DeleteCollection(ctx, collection)
}
