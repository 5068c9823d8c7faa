package service

import (
	"context"
	"testing"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
)

type fakeEngineReader struct {
	engines map[string]*domain.QueryEngine
	docs    map[string]*domain.Document
	counts  map[string]int64

	listOwner  string
	listLimit  int
	listOffset int
}

func (f *fakeEngineReader) GetEngineByID(ctx context.Context, id string) (*domain.QueryEngine, error) {
	if e, ok := f.engines[id]; ok {
		return e, nil
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "engine %s not found", id)
}

func (f *fakeEngineReader) ListEngines(ctx context.Context, ownerID string, limit, offset int) ([]domain.QueryEngine, error) {
	f.listOwner, f.listLimit, f.listOffset = ownerID, limit, offset
	out := make([]domain.QueryEngine, 0, len(f.engines))
	for _, e := range f.engines {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeEngineReader) GetDocumentByEngineID(ctx context.Context, engineID string) (*domain.Document, error) {
	if d, ok := f.docs[engineID]; ok {
		return d, nil
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "document for engine %s not found", engineID)
}

func (f *fakeEngineReader) CountChunks(ctx context.Context, documentID string) (int64, error) {
	return f.counts[documentID], nil
}

func TestCatalogGetEngine(t *testing.T) {
	reader := &fakeEngineReader{
		engines: map[string]*domain.QueryEngine{
			"eng-1": {ID: "eng-1", OwnerID: "owner-1", Name: "handbook", IndexRef: "engine_eng-1", Dimension: 4},
		},
		docs: map[string]*domain.Document{
			"eng-1": {ID: "doc-1", QueryEngineID: "eng-1", SourceRef: "documents/handbook.txt"},
		},
		counts: map[string]int64{"doc-1": 4},
	}
	catalog := NewCatalogService(reader, nil)

	detail, err := catalog.GetEngine(context.Background(), "eng-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Engine.Name != "handbook" {
		t.Errorf("unexpected engine: %+v", detail.Engine)
	}
	if detail.Document == nil || detail.Document.ID != "doc-1" {
		t.Errorf("unexpected document: %+v", detail.Document)
	}
	if detail.ChunkCount != 4 {
		t.Errorf("expected 4 chunks, got %d", detail.ChunkCount)
	}
}

func TestCatalogGetEngineMissing(t *testing.T) {
	catalog := NewCatalogService(&fakeEngineReader{}, nil)

	_, err := catalog.GetEngine(context.Background(), "nope")
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestCatalogGetEngineToleratesMissingDocument(t *testing.T) {
	reader := &fakeEngineReader{
		engines: map[string]*domain.QueryEngine{
			"eng-1": {ID: "eng-1", Name: "handbook", IndexRef: "engine_eng-1"},
		},
	}
	catalog := NewCatalogService(reader, nil)

	detail, err := catalog.GetEngine(context.Background(), "eng-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Engine == nil || detail.Document != nil || detail.ChunkCount != 0 {
		t.Errorf("unexpected detail: %+v", detail)
	}
}

func TestCatalogListEnginesForwardsFilters(t *testing.T) {
	reader := &fakeEngineReader{}
	catalog := NewCatalogService(reader, nil)

	if _, err := catalog.ListEngines(context.Background(), "owner-1", 20, 40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.listOwner != "owner-1" || reader.listLimit != 20 || reader.listOffset != 40 {
		t.Errorf("filters not forwarded: owner=%q limit=%d offset=%d",
			reader.listOwner, reader.listLimit, reader.listOffset)
	}
}
