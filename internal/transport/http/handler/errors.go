package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer = "Internal server error"
	errDispatchFailed = "Could not send verification email. Please try again."
)

// writeError maps a usecase error to its status code. Errors without a
// client-safe message are logged and reported as a generic 500.
func writeError(c *gin.Context, logger *slog.Logger, op string, err error) {
	if errors.Is(err, domain.ErrDispatchFailed) {
		logger.ErrorContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errDispatchFailed})
		return
	}

	msg, public := domain.PublicMessage(err)
	switch {
	case public && domain.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": msg})
	case public && domain.IsBadRequest(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case public && domain.IsUnauthorized(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	case public && domain.IsForbidden(err):
		c.JSON(http.StatusForbidden, gin.H{"error": msg})
	default:
		logger.ErrorContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
