package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/storage"
)

// ExtractedDocument is the result of fetching and extracting a source document.
type ExtractedDocument struct {
	Text        string
	ContentType string
	SizeBytes   int64
}

// IngestionService fetches source documents from object storage and extracts
// their plain text.
type IngestionService struct {
	storage storage.ObjectStorage
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(store storage.ObjectStorage) *IngestionService {
	return &IngestionService{storage: store}
}

// IsSupportedFormat reports whether the document reference carries an
// extension the extractor can handle.
func IsSupportedFormat(documentRef string) bool {
	switch strings.ToLower(path.Ext(documentRef)) {
	case ".txt", ".md", ".csv", ".pdf":
		return true
	}
	return false
}

// Ingest fetches the document behind documentRef and extracts plain text.
// Parameters:
//   - ctx: request context.
//   - documentRef: object storage key of the source document.
// Returns:
//   - *ExtractedDocument: extracted text with content type and raw size.
//   - error: source_not_found if the object is missing or inaccessible,
//     unsupported_format if the extension or content cannot be handled.
func (s *IngestionService) Ingest(ctx context.Context, documentRef string) (*ExtractedDocument, error) {
	ext := strings.ToLower(path.Ext(documentRef))
	if !IsSupportedFormat(documentRef) {
		return nil, apperrors.Newf(apperrors.KindUnsupportedFormat, "unsupported document format %q (supported: .txt, .md, .csv, .pdf)", ext)
	}

	exists, err := s.storage.Exists(ctx, documentRef)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceNotFound, "document is not accessible", err)
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.KindSourceNotFound, "document %q does not exist in storage", documentRef)
	}

	reader, err := s.storage.Download(ctx, documentRef)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceNotFound, "failed to open document", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		// Mid-stream read failures are transient; the caller may retry
		return nil, apperrors.Wrap(apperrors.KindExternalService, "failed to read document from storage", err)
	}

	var text, contentType string
	switch ext {
	case ".txt":
		text, contentType = string(data), "text/plain"
	case ".md":
		text, contentType = string(data), "text/markdown"
	case ".csv":
		contentType = "text/csv"
		text, err = extractCSV(data)
	case ".pdf":
		contentType = "application/pdf"
		text, err = extractPDF(data)
	}
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Extracted document text: ref=%s, content_type=%s, raw_bytes=%d, text_bytes=%d",
		documentRef, contentType, len(data), len(text))

	return &ExtractedDocument{
		Text:        text,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
	}, nil
}

// extractCSV renders each row as "header: value" lines, one paragraph per
// row, so downstream chunking keeps rows together.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindUnsupportedFormat, "failed to parse CSV", err)
	}
	if len(records) < 2 {
		return "", nil
	}

	header := records[0]
	sections := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		lines := make([]string, 0, len(row))
		for i, field := range row {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) {
				name = header[i]
			}
			lines = append(lines, name+": "+field)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, paragraphSeparator), nil
}

// extractPDF extracts the plain text of every page.
func extractPDF(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.KindUnsupportedFormat, "failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindUnsupportedFormat, "failed to parse PDF", err)
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindUnsupportedFormat, "failed to extract PDF text", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", apperrors.Wrap(apperrors.KindUnsupportedFormat, "failed to extract PDF text", err)
	}

	return buf.String(), nil
}
