package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// DocumentStatus represents the processing status of an ingested document.
// Values include DocumentStatusIngested and DocumentStatusFailed.
type DocumentStatus string

const (
	DocumentStatusIngested DocumentStatus = "ingested"
	DocumentStatusFailed   DocumentStatus = "failed"
)

// Vector is a custom type for storing embedding vectors as JSON in the database.
type Vector []float32

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the vector.
//   - error: non-nil if marshaling fails.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = Vector{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Vector")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, v)
}

// Document represents the ingested source behind a query engine. One
// document is ingested per build; QueryEngineID carries the engine id
// allocated at pipeline start, so the row stays orphaned until the engine
// record is committed.
type Document struct {
	ID            string         `gorm:"type:text;primaryKey" json:"id"`
	QueryEngineID string         `gorm:"type:text;not null;index:idx_documents_engine" json:"query_engine_id"`
	SourceRef     string         `gorm:"type:text;not null" json:"source_ref"`
	ContentType   string         `gorm:"type:text" json:"content_type"`
	Status        DocumentStatus `gorm:"type:text;default:ingested" json:"status"`
	SizeBytes     int64          `json:"size_bytes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Document.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Document) TableName() string {
	return "documents"
}

// Chunk represents one retrievable unit of a document's text. Ordinals are
// contiguous from 0 and define retrieval order; the embedding dimension is
// constant across all chunks of the same engine.
type Chunk struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	DocumentID string    `gorm:"type:text;not null;uniqueIndex:idx_chunks_doc_ordinal,priority:1" json:"document_id"`
	Ordinal    int       `gorm:"not null;uniqueIndex:idx_chunks_doc_ordinal,priority:2" json:"ordinal"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  Vector    `gorm:"type:text" json:"embedding"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Chunk.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Chunk) TableName() string {
	return "chunks"
}
