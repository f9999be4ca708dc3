package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-core/internal/contacts"
	"chat-core/internal/middleware"
	"chat-core/internal/models"
	"chat-core/internal/telemetry"
)

type requestAdmin interface {
	Approve(ctx context.Context, requestID, adminID int) (models.ConnectionRequest, error)
	AdminReject(ctx context.Context, requestID, adminID int) (models.ConnectionRequest, error)
	Inject(ctx context.Context, from, to, adminID int) (models.ConnectionRequest, error)
	Stats(ctx context.Context) (models.RequestStats, error)
}

// AdminHandler exposes the approval path of connection requests. Routes are expected behind
// middleware.RequireRole.
type AdminHandler struct {
	requests requestAdmin
	audit    telemetry.Auditor
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(requests requestAdmin, audit telemetry.Auditor) *AdminHandler {
	return &AdminHandler{requests: requests, audit: audit}
}

// Inject handles POST /api/admin/connection-requests.
func (h *AdminHandler) Inject(c *gin.Context) {
	adminID, _ := middleware.UserID(c)

	var req struct {
		FromUserID int `json:"from_user_id" binding:"required"`
		ToUserID   int `json:"to_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, telemetry.LevelWarn, "invalid connection request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.requests.Inject(c.Request.Context(), req.FromUserID, req.ToUserID, adminID)
	if err != nil {
		respondRequestError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Approve handles POST /api/admin/connection-requests/:id/approve.
func (h *AdminHandler) Approve(c *gin.Context) {
	h.decide(c, h.requests.Approve)
}

// Reject handles POST /api/admin/connection-requests/:id/reject.
func (h *AdminHandler) Reject(c *gin.Context) {
	h.decide(c, h.requests.AdminReject)
}

func (h *AdminHandler) decide(c *gin.Context, fn func(ctx context.Context, requestID, adminID int) (models.ConnectionRequest, error)) {
	requestID, err := strconv.Atoi(c.Param("id"))
	if err != nil || requestID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	adminID, _ := middleware.UserID(c)

	req, err := fn(c.Request.Context(), requestID, adminID)
	if err != nil {
		respondRequestError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Stats handles GET /api/admin/connection-requests/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.requests.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func respondRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contacts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "connection request not found"})
	case errors.Is(err, contacts.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, contacts.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, contacts.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
