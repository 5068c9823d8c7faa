package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quernlabs/quern/internal/apperrors"
)

// statusFor maps an application error kind to an HTTP status code.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindUnsupportedFormat:
		return http.StatusBadRequest
	case apperrors.KindNotFound, apperrors.KindSourceNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindPermission:
		return http.StatusForbidden
	case apperrors.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case apperrors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the standard error body for an application error.
// Parameters:
//   - c: Gin request context.
//   - err: error to report.
//
// Returns: none (writes JSON response).
func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": apperrors.MessageOf(err)})
}
