package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"chat-core/internal/observability"
)

// RequestID propagates or assigns X-Request-ID and stores it on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := observability.ClientInfoFromRequest(c.Request)
		c.Header("X-Request-ID", info.RequestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), info.RequestID))
		c.Next()
	}
}

// CORS allows the configured origins; an empty list allows any origin.
func CORS(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && OriginAllowed(allowed, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-User-ID")
			c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether origin is in allowed; an empty list allows everything.
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// NoSniff stops browsers from second-guessing the declared type of user-supplied files.
func NoSniff() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
