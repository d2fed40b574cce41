// Package middleware holds the gin middleware of the restore status API:
// request ids and the coded error response.
//
// Import Path: dbaas.io/workflow/internal/api/middleware
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error. An
// AppError (RESTORE_NOT_FOUND, INVALID_QUERY_PARAM, STORE_UNAVAILABLE) keeps
// its code, status and params; anything else becomes INTERNAL_ERROR.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			logger.Warn("Status API request failed",
				zap.String("request_id", rid),
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
				zap.Error(appErr.Err),
			)
			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			}
			if len(appErr.Params) > 0 {
				body["params"] = appErr.Params
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Error("Status API request failed without code", zap.String("request_id", rid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "An internal error occurred",
		})
	}
}
