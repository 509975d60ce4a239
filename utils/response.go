package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperr "github.com/phillip/hela-fund-go/apperr"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidState:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// RespondError writes the error envelope. Anything that is not an
// *apperr.Error is logged and reported as a generic 500.
func RespondError(c *gin.Context, log *zap.Logger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "internal server error",
			"kind":    apperr.KindInternal,
		})
		return
	}

	if e.Kind == apperr.KindConflict {
		log.Warn("request gave up on conflict", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(StatusFor(e.Kind), gin.H{
		"success": false,
		"message": e.Message,
		"kind":    e.Kind,
	})
}

// BadRequest reports a malformed body or parameter.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": message,
		"kind":    apperr.KindValidation,
	})
}

func RespondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func RespondPage(c *gin.Context, data any, page, limit int, total, pages int64) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}
