package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jaennil/tileproxy/pkg/logger"
)

const (
	loggerKey       = "logger"
	RequestIDHeader = "X-Request-ID"
)

// GinZapLogger gives every request a child logger tagged with its request id and client key,
// and writes one access line when the request completes. It must run after ClientIdentity.
func GinZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		rl := l.With("request_id", requestID, "client", Identity(c))
		c.Set(loggerKey, rl)
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), rl))

		start := time.Now()

		c.Next()

		rl.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"size", c.Writer.Size(),
		)
	}
}

// Logger returns the request logger, falling back to the one carried by the request context.
func Logger(c *gin.Context) logger.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
