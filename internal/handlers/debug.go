package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/telemetry"
)

type onlineLister interface {
	OnlineUsers() []int
}

// Healthz handles GET /healthz.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, online onlineLister, audit telemetry.Auditor, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/online", func(c *gin.Context) {
		users := online.OnlineUsers()
		c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, audit, telemetry.LevelInfo, "audit test")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
