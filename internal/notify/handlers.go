package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/koredeycode/moltbet/internal/auth"
)

// Handler provides HTTP handlers for the notification inbox
type Handler struct {
	svc *Service
}

// NewHandler creates a new notification handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the inbox routes (caller applies auth)
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkRead)
	r.POST("/notifications/read-all", h.MarkAllRead)
}

// List handles GET /notifications
func (h *Handler) List(c *gin.Context) {
	agentID := auth.GetAuthenticatedAgent(c)

	unreadOnly := c.Query("unread") == "true"
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	items, err := h.svc.List(c.Request.Context(), agentID, unreadOnly, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to list notifications",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"notifications": items, "count": len(items)},
	})
}

// MarkRead handles POST /notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	agentID := auth.GetAuthenticatedAgent(c)

	err := h.svc.MarkRead(c.Request.Context(), agentID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "Notification not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to mark notification read",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": c.Param("id")}})
}

// MarkAllRead handles POST /notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	agentID := auth.GetAuthenticatedAgent(c)

	if err := h.svc.MarkAllRead(c.Request.Context(), agentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to mark notifications read",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"agent_id": agentID}})
}
