package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger emits one structured line per request. Response size matters here
// because the resize endpoint streams JPEG bytes back.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		logger.Info("request completed",
			zap.String("method", params.Method),
			zap.String("path", params.Path),
			zap.Int("status", params.StatusCode),
			zap.Int("response_size", params.BodySize),
			zap.Duration("latency", params.Latency),
			zap.String("client_ip", params.ClientIP),
		)
		return ""
	})
}
