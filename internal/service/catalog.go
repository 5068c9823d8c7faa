package service

import (
	"context"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
)

// EngineReader is the read-only slice of the metadata store the catalog
// serves from. Only committed engines are reachable through it, so
// everything it returns describes a ready index.
type EngineReader interface {
	GetEngineByID(ctx context.Context, id string) (*domain.QueryEngine, error)
	ListEngines(ctx context.Context, ownerID string, limit, offset int) ([]domain.QueryEngine, error)
	GetDocumentByEngineID(ctx context.Context, engineID string) (*domain.Document, error)
	CountChunks(ctx context.Context, documentID string) (int64, error)
}

// EngineDetail is a committed engine together with its source document and
// stored chunk count.
type EngineDetail struct {
	Engine     *domain.QueryEngine `json:"engine"`
	Document   *domain.Document    `json:"document,omitempty"`
	ChunkCount int64               `json:"chunk_count"`
}

// CatalogService serves reads over committed query engines.
type CatalogService struct {
	engines EngineReader
	logger  *logger.Logger
}

// NewCatalogService creates a CatalogService.
// Parameters:
//   - engines: committed engine metadata reader.
//   - log: logger instance.
//
// Returns:
//   - *CatalogService: initialized service.
func NewCatalogService(engines EngineReader, log *logger.Logger) *CatalogService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &CatalogService{
		engines: engines,
		logger:  log,
	}
}

// ListEngines returns committed engines, optionally scoped to one owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: optional owner filter, empty for all.
//   - limit: maximum records to return.
//   - offset: records to skip.
//
// Returns:
//   - []domain.QueryEngine: matching engines.
//   - error: store failure.
func (s *CatalogService) ListEngines(ctx context.Context, ownerID string, limit, offset int) ([]domain.QueryEngine, error) {
	return s.engines.ListEngines(ctx, ownerID, limit, offset)
}

// GetEngine returns one committed engine with its document and chunk count.
// A missing document row is tolerated: the engine is still returned, since
// the engine record alone is the queryable artifact.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: engine identifier.
//
// Returns:
//   - *EngineDetail: engine with document metadata.
//   - error: not found or store failure.
func (s *CatalogService) GetEngine(ctx context.Context, id string) (*EngineDetail, error) {
	engine, err := s.engines.GetEngineByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &EngineDetail{Engine: engine}

	doc, err := s.engines.GetDocumentByEngineID(ctx, id)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, err
		}
		return detail, nil
	}
	detail.Document = doc

	count, err := s.engines.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	detail.ChunkCount = count

	return detail, nil
}
