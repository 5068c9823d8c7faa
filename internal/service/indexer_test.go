package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/repository"
)

// fakeIndexClient records calls and replays a scripted status sequence. The
// last status in the script repeats once the script is exhausted.
type fakeIndexClient struct {
	createdName      string
	createdDimension int
	createErr        error

	upserts   [][]repository.ChunkPoint
	upsertErr error
	failBatch int

	statuses    []repository.IndexStatus
	statusErr   error
	statusCalls int

	deleted   []string
	deleteErr error
}

func (f *fakeIndexClient) CreateCollection(ctx context.Context, name string, dimension int) error {
	f.createdName = name
	f.createdDimension = dimension
	return f.createErr
}

func (f *fakeIndexClient) CollectionStatus(ctx context.Context, name string) (repository.IndexStatus, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	call := f.statusCalls
	f.statusCalls++
	if call >= len(f.statuses) {
		call = len(f.statuses) - 1
	}
	return f.statuses[call], nil
}

func (f *fakeIndexClient) UpsertChunks(ctx context.Context, collection string, points []repository.ChunkPoint) error {
	f.upserts = append(f.upserts, points)
	if f.failBatch > 0 && len(f.upserts) == f.failBatch {
		return f.upsertErr
	}
	return nil
}

func (f *fakeIndexClient) DeleteCollection(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func makeChunkPoints(n int) []repository.ChunkPoint {
	points := make([]repository.ChunkPoint, n)
	for i := range points {
		points[i] = repository.ChunkPoint{
			Ordinal:    uint64(i),
			Vector:     []float32{float32(i)},
			DocumentID: "doc-1",
			Text:       fmt.Sprintf("chunk %d", i),
		}
	}
	return points
}

func TestIndexBuilderCollectionName(t *testing.T) {
	b := NewIndexBuilder(&fakeIndexClient{}, IndexBuilderConfig{CollectionPrefix: "quern"})
	if got := b.CollectionName("abc-123"); got != "quern_abc-123" {
		t.Errorf("unexpected collection name: %q", got)
	}

	// Empty prefix falls back to the default.
	b = NewIndexBuilder(&fakeIndexClient{}, IndexBuilderConfig{})
	if got := b.CollectionName("abc-123"); got != "engine_abc-123" {
		t.Errorf("unexpected default collection name: %q", got)
	}
}

func TestIndexBuilderCreateIndex(t *testing.T) {
	client := &fakeIndexClient{}
	b := NewIndexBuilder(client, IndexBuilderConfig{CollectionPrefix: "quern"})

	handle, err := b.CreateIndex(context.Background(), "eng-1", 768)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "quern_eng-1" {
		t.Errorf("unexpected handle: %q", handle)
	}
	if client.createdName != "quern_eng-1" || client.createdDimension != 768 {
		t.Errorf("unexpected create call: name=%q dimension=%d", client.createdName, client.createdDimension)
	}
}

func TestIndexBuilderCreateIndexError(t *testing.T) {
	client := &fakeIndexClient{createErr: apperrors.New(apperrors.KindExternalService, "qdrant unavailable")}
	b := NewIndexBuilder(client, IndexBuilderConfig{})

	if _, err := b.CreateIndex(context.Background(), "eng-1", 768); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexBuilderUpsertBatching(t *testing.T) {
	client := &fakeIndexClient{}
	b := NewIndexBuilder(client, IndexBuilderConfig{UpsertBatchSize: 100})

	if err := b.Upsert(context.Background(), "col", makeChunkPoints(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.upserts) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(client.upserts))
	}
	wantSizes := []int{100, 100, 50}
	next := uint64(0)
	for i, batch := range client.upserts {
		if len(batch) != wantSizes[i] {
			t.Errorf("batch %d: expected %d points, got %d", i, wantSizes[i], len(batch))
		}
		for _, p := range batch {
			if p.Ordinal != next {
				t.Fatalf("batch %d: expected ordinal %d, got %d", i, next, p.Ordinal)
			}
			next++
		}
	}
}

func TestIndexBuilderUpsertStopsOnError(t *testing.T) {
	client := &fakeIndexClient{
		failBatch: 2,
		upsertErr: apperrors.New(apperrors.KindExternalService, "write refused"),
	}
	b := NewIndexBuilder(client, IndexBuilderConfig{UpsertBatchSize: 10})

	err := b.Upsert(context.Background(), "col", makeChunkPoints(35))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(client.upserts) != 2 {
		t.Errorf("expected upserts to stop after the failing batch, got %d", len(client.upserts))
	}
}

func TestIndexBuilderPublishReadyAfterPolls(t *testing.T) {
	client := &fakeIndexClient{
		statuses: []repository.IndexStatus{
			repository.IndexStatusProvisioning,
			repository.IndexStatusProvisioning,
			repository.IndexStatusReady,
		},
	}
	b := NewIndexBuilder(client, IndexBuilderConfig{
		PollInterval:   time.Millisecond,
		PublishTimeout: time.Hour,
	})

	heartbeats := 0
	ref, err := b.Publish(context.Background(), "col", func(context.Context) error {
		heartbeats++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "col" {
		t.Errorf("unexpected endpoint ref: %q", ref)
	}
	if client.statusCalls != 3 {
		t.Errorf("expected 3 status polls, got %d", client.statusCalls)
	}
	// One heartbeat per not-yet-ready poll.
	if heartbeats != 2 {
		t.Errorf("expected 2 heartbeats, got %d", heartbeats)
	}
}

func TestIndexBuilderPublishFailedStatus(t *testing.T) {
	client := &fakeIndexClient{statuses: []repository.IndexStatus{repository.IndexStatusFailed}}
	b := NewIndexBuilder(client, IndexBuilderConfig{PollInterval: time.Millisecond})

	_, err := b.Publish(context.Background(), "col", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindExternalService {
		t.Errorf("expected external_service, got %q", kind)
	}
}

func TestIndexBuilderPublishTimeout(t *testing.T) {
	client := &fakeIndexClient{statuses: []repository.IndexStatus{repository.IndexStatusProvisioning}}
	b := NewIndexBuilder(client, IndexBuilderConfig{
		PollInterval:   time.Millisecond,
		PublishTimeout: time.Nanosecond,
	})

	_, err := b.Publish(context.Background(), "col", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindTimeout {
		t.Errorf("expected timeout, got %q", kind)
	}
}

func TestIndexBuilderPublishHeartbeatErrorAborts(t *testing.T) {
	client := &fakeIndexClient{statuses: []repository.IndexStatus{repository.IndexStatusProvisioning}}
	b := NewIndexBuilder(client, IndexBuilderConfig{
		PollInterval:   time.Millisecond,
		PublishTimeout: time.Hour,
	})

	rejected := apperrors.New(apperrors.KindConflict, "job is failed, heartbeat rejected")
	_, err := b.Publish(context.Background(), "col", func(context.Context) error {
		return rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected heartbeat error, got %v", err)
	}
	if client.statusCalls != 1 {
		t.Errorf("expected a single poll, got %d", client.statusCalls)
	}
}

func TestIndexBuilderPublishContextCancelled(t *testing.T) {
	client := &fakeIndexClient{statuses: []repository.IndexStatus{repository.IndexStatusProvisioning}}
	b := NewIndexBuilder(client, IndexBuilderConfig{
		PollInterval:   time.Hour,
		PublishTimeout: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Publish(ctx, "col", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIndexBuilderTeardown(t *testing.T) {
	client := &fakeIndexClient{}
	b := NewIndexBuilder(client, IndexBuilderConfig{})

	if err := b.Teardown(context.Background(), "quern_eng-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "quern_eng-1" {
		t.Errorf("unexpected delete calls: %v", client.deleted)
	}
}
