package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khangpv/imgprep/internal/models"
	"go.uber.org/zap"
)

// ErrorHandler recovers panics and turns them into the API error envelope.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(ctx *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", ctx.Request.URL.Path),
			zap.String("method", ctx.Request.Method),
		)

		ctx.AbortWithStatusJSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "Internal server error",
		})
	})
}
