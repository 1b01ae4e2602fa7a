package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jumbojolt/identity/internal/infra/logger"
)

const (
	requestIDHeader       = "X-Request-ID"
	maxCorrelationIDBytes = 64
)

// RequestID injects a correlation identifier into the context and headers.
// Client-supplied IDs are kept only when they are short and log-safe.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID, ok := sanitizeCorrelationID(c.GetHeader(requestIDHeader))
		if !ok {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// sanitizeCorrelationID accepts [A-Za-z0-9._:-] up to maxCorrelationIDBytes.
func sanitizeCorrelationID(id string) (string, bool) {
	if id == "" || len(id) > maxCorrelationIDBytes {
		return "", false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		default:
			return "", false
		}
	}
	return id, true
}
