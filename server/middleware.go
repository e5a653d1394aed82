package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "embedbase.requestID"
	tenantKey    = "embedbase.tenantID"
)

// SetTenantID records the tenant for the current request.
func SetTenantID(c *gin.Context, tenantID string) {
	c.Set(tenantKey, tenantID)
}

// TenantID returns the tenant recorded for the current request, or "" for
// the global scope.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// HeaderTenant copies the named request header into the tenant slot.
// Requests without the header run in the global scope.
func HeaderTenant(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenant := c.GetHeader(header); tenant != "" {
			SetTenantID(c, tenant)
		}
		c.Next()
	}
}

// RequestID returns the id assigned to the current request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// requestID reuses the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"request_id", RequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"tenant", TenantID(c))
	}
}
