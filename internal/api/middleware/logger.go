package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/assetlens/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const ginLoggerKey = "logger"

// LoggerMiddleware returns a Gin middleware that injects a request-scoped logger.
// Parameters:
//   - log: base logger to enrich with request fields; nil uses the default logger.
//
// Returns:
//   - gin.HandlerFunc: middleware handler.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := c.Request.Context()
		if log != nil {
			ctx = log.WithContext(ctx)
		}
		ctx = logger.SetRequestID(ctx, requestID)
		ctx = logger.SetComponent(ctx, "api")
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginLoggerKey, logger.FromContext(ctx))
		c.Header(RequestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		entry := logger.With(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldSize:       c.Writer.Size(),
			"route":                route,
			"client_ip":            c.ClientIP(),
		})

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(ctx, "Request failed: %s %s", c.Request.Method, c.Request.URL.Path)
		case status >= http.StatusBadRequest:
			entry.Warn(ctx, "Request rejected: %s %s", c.Request.Method, c.Request.URL.Path)
		case route == "/health":
			entry.Debug(ctx, "Health check served")
		default:
			entry.Info(ctx, "Request completed: %s %s", c.Request.Method, c.Request.URL.Path)
		}
	}
}

// GetLogger returns the request-scoped logger, falling back to the one
// carried by the request context.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, ok := c.Get(ginLoggerKey); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
