package handlers

import (
	"github.com/gin-gonic/gin"

	"chat-core/internal/middleware"
	"chat-core/internal/telemetry"
)

// emitAudit records a handler-level audit line attributed to the caller, when known.
func emitAudit(c *gin.Context, audit telemetry.Auditor, level, text string) {
	if audit == nil {
		return
	}
	userID, _ := middleware.UserID(c)
	audit.Emit(c.Request.Context(), level, text, userID)
}
