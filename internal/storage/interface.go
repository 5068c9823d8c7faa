package storage

import (
	"context"
	"io"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage defines the interface for object storage operations.
// Document ingestion consumes it read-only (Exists, Download, List); the
// upload endpoint and bucket bootstrap use the write side.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns objects whose keys start with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket creates the backing bucket if it doesn't exist
	EnsureBucket(ctx context.Context) error
}
