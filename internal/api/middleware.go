package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jbandu/bag-sub001/pkg/logging"
)

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})
}

// RequestIDMiddleware adds a unique request ID to each request and threads it
// through the request context as the correlation ID for downstream logging.
func RequestIDMiddleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		ctx = logging.WithCorrelationID(ctx, reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	})
}

// LoggingMiddleware logs each request through the structured logger
func LoggingMiddleware() gin.HandlerFunc {
	logger := logging.GetLogger()
	return gin.HandlerFunc(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}).Info("HTTP request")
	})
}

// ErrorHandlingMiddleware handles panics and errors
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.GetLogger().Error("Panic recovered",
			"panic", recovered,
			"path", c.Request.URL.Path,
		)
		InternalErrorResponse(c, "An internal error occurred")
		c.Abort()
	})
}
