package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/service"
	"github.com/quernlabs/quern/internal/storage"
)

// maxUploadSize caps document uploads at 50 MB.
const maxUploadSize = 50 << 20

// DocumentHandler handles source document uploads into object storage.
type DocumentHandler struct {
	storage storage.ObjectStorage
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - store: object storage backend for uploaded documents.
//
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(store storage.ObjectStorage) *DocumentHandler {
	return &DocumentHandler{
		storage: store,
	}
}

// UploadResponse returns the storage reference for an uploaded document.
type UploadResponse struct {
	DocumentRef string `json:"document_ref"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// UploadDocument handles POST /api/v1/documents. The uploaded file lands in
// object storage under a fresh key, and the returned document_ref is what a
// build request submits.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	ctx := c.Request.Context()

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Form file 'file' is required"})
		return
	}

	if !service.IsSupportedFormat(file.Filename) {
		logger.CtxWarn(ctx, "Rejected upload with unsupported format: filename=%s, client_ip=%s",
			file.Filename, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unsupported document format, expected .txt, .md, .csv or .pdf",
		})
		return
	}

	if file.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Document exceeds the 50 MB upload limit",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file: " + err.Error()})
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := "documents/" + uuid.New().String() + filepath.Ext(file.Filename)
	if err := h.storage.Upload(ctx, key, src, file.Size, contentType); err != nil {
		logger.CtxError(ctx, "Document upload failed: key=%s, error=%v", key, err)
		writeError(c, err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldSize: int(file.Size),
	}).Info(ctx, "Document uploaded: key=%s, filename=%s", key, file.Filename)

	c.JSON(http.StatusCreated, UploadResponse{
		DocumentRef: key,
		SizeBytes:   file.Size,
		ContentType: contentType,
	})
}
