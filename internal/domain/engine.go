package domain

import "time"

// QueryEngine is the published artifact a successful build produces. The
// record is created only at the pipeline's commit point, after the backing
// vector index is fully built and ready, so an engine row never describes a
// partially built index. Name is unique within an owner's scope.
type QueryEngine struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	OwnerID    string    `gorm:"type:text;not null;uniqueIndex:idx_engines_owner_name,priority:1" json:"owner_id"`
	Name       string    `gorm:"type:text;not null;uniqueIndex:idx_engines_owner_name,priority:2" json:"name"`
	LLMType    string    `gorm:"type:text;not null" json:"llm_type"`
	IsPublic   bool      `gorm:"default:false" json:"is_public"`
	IndexRef   string    `gorm:"type:text;not null" json:"index_ref"`
	Dimension  int       `gorm:"not null" json:"dimension"`
	ChunkCount int       `gorm:"default:0" json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for QueryEngine.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (QueryEngine) TableName() string {
	return "query_engines"
}
