package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/domain"
	"gorm.io/gorm"
)

// EngineRepository is the metadata store for query engines, their source
// documents, and chunks. Chunks and documents written mid-build stay
// invisible to consumers because nothing references them until
// CommitQueryEngine creates the engine row; that single insert is the commit
// point of the whole pipeline.
type EngineRepository struct {
	db *gorm.DB
}

// NewEngineRepository creates a new EngineRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EngineRepository: repository instance bound to db.
func NewEngineRepository(db *gorm.DB) *EngineRepository {
	return &EngineRepository{db: db}
}

// CreateDocument inserts the metadata record for an ingested source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *EngineRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// CommitChunks writes chunk records for a document in ordinal order. Rows
// are batched; a partial write is acceptable mid-pipeline because the chunks
// remain unreferenced until the engine record exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: owning document ID; every chunk must carry it.
//   - chunks: chunk records to persist.
// Returns:
//   - error: non-nil if the insert fails or a chunk belongs to another document.
func (r *EngineRepository) CommitChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if chunks[i].DocumentID != documentID {
			return apperrors.Newf(apperrors.KindInternal,
				"chunk ordinal %d belongs to document %s, not %s",
				chunks[i].Ordinal, chunks[i].DocumentID, documentID)
		}
	}
	ordered := make([]domain.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	return r.db.WithContext(ctx).CreateInBatches(ordered, 100).Error
}

// CommitQueryEngine inserts the engine record, flipping the build's output
// into existence. Callers invoke this only after the backing index reported
// ready.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - engine: fully populated engine record, index reference included.
// Returns:
//   - error: conflict if the (owner, name) pair is taken, otherwise the insert error.
func (r *EngineRepository) CommitQueryEngine(ctx context.Context, engine *domain.QueryEngine) error {
	if engine.IndexRef == "" {
		return apperrors.New(apperrors.KindInternal, "refusing to commit engine without index reference")
	}
	if err := r.db.WithContext(ctx).Create(engine).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Wrapf(apperrors.KindConflict, err,
				"engine %q already exists", engine.Name)
		}
		return err
	}
	return nil
}

// GetEngineByID retrieves a query engine by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: engine ID.
// Returns:
//   - *domain.QueryEngine: engine record if found.
//   - error: not-found if no such engine, otherwise the lookup error.
func (r *EngineRepository) GetEngineByID(ctx context.Context, id string) (*domain.QueryEngine, error) {
	var engine domain.QueryEngine
	if err := r.db.WithContext(ctx).First(&engine, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "engine %s not found", id)
		}
		return nil, err
	}
	return &engine, nil
}

// ExistsEngineName checks whether an engine with the given name exists in
// the owner's scope.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: owner scope for the name.
//   - name: engine name.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *EngineRepository) ExistsEngineName(ctx context.Context, ownerID, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.QueryEngine{}).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListEngines retrieves engines visible to an owner: their own plus public
// ones, newest first. A non-positive limit returns all matching rows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: requesting owner; empty lists only public engines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.QueryEngine: matching engine records.
//   - error: non-nil if the query fails.
func (r *EngineRepository) ListEngines(ctx context.Context, ownerID string, limit, offset int) ([]domain.QueryEngine, error) {
	query := r.db.WithContext(ctx).Model(&domain.QueryEngine{})
	if ownerID != "" {
		query = query.Where("owner_id = ? OR is_public = ?", ownerID, true)
	} else {
		query = query.Where("is_public = ?", true)
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var engines []domain.QueryEngine
	if err := query.Find(&engines).Error; err != nil {
		return nil, err
	}
	return engines, nil
}

// GetDocumentByEngineID retrieves the source document for an engine.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - engineID: engine ID the document was ingested for.
// Returns:
//   - *domain.Document: document record if found.
//   - error: not-found if no such document, otherwise the lookup error.
func (r *EngineRepository) GetDocumentByEngineID(ctx context.Context, engineID string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "query_engine_id = ?", engineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "document for engine %s not found", engineID)
		}
		return nil, err
	}
	return &doc, nil
}

// GetChunks retrieves chunks for a document in ordinal order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: owning document ID.
//   - limit: maximum number of records to return; 0 means all.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Chunk: matching chunk records ordered by ordinal.
//   - error: non-nil if the query fails.
func (r *EngineRepository) GetChunks(ctx context.Context, documentID string, limit, offset int) ([]domain.Chunk, error) {
	query := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var chunks []domain.Chunk
	if err := query.Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// CountChunks counts the chunks stored for a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - documentID: owning document ID.
// Returns:
//   - int64: number of chunk records.
//   - error: non-nil if the query fails.
func (r *EngineRepository) CountChunks(ctx context.Context, documentID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteBuildArtifacts reclaims chunk rows written for an engine id whose
// build failed, and marks its document rows failed. Best-effort: the rows are
// unreachable either way because no engine record references them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - engineID: engine id allocated for the failed build.
// Returns:
//   - error: non-nil if a write fails.
func (r *EngineRepository) DeleteBuildArtifacts(ctx context.Context, engineID string) error {
	docIDs := r.db.WithContext(ctx).Model(&domain.Document{}).
		Select("id").
		Where("query_engine_id = ?", engineID)

	if err := r.db.WithContext(ctx).
		Where("document_id IN (?)", docIDs).
		Delete(&domain.Chunk{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("query_engine_id = ?", engineID).
		Update("status", domain.DocumentStatusFailed).Error
}
