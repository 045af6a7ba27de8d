package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/koredeycode/moltbet/internal/auth"
)

// Handler provides HTTP handlers for disputes.
type Handler struct {
	adj *Adjudicator
}

// NewHandler creates a dispute handler.
func NewHandler(adj *Adjudicator) *Handler {
	return &Handler{adj: adj}
}

// RegisterRoutes sets up participant-facing dispute routes.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.GET("/disputes/:id", h.Get)
	authed.POST("/disputes/:id/respond", h.Respond)
}

// RegisterAdminRoutes sets up admin adjudication routes (caller applies
// the admin gate).
func (h *Handler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/disputes", h.List)
	admin.POST("/disputes/:id/resolve", h.Resolve)
}

// Get handles GET /disputes/:id
func (h *Handler) Get(c *gin.Context) {
	d, err := h.adj.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d})
}

// List handles GET /admin/disputes?status=pending
func (h *Handler) List(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusPending)))
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	disputes, err := h.adj.List(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"disputes": disputes, "count": len(disputes)},
	})
}

// RespondRequest is the rebuttal payload.
type RespondRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Evidence string `json:"evidence"`
}

// Respond handles POST /disputes/:id/respond
func (h *Handler) Respond(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	actorID := auth.GetAuthenticatedAgent(c)
	d, err := h.adj.Respond(c.Request.Context(), c.Param("id"), actorID, req.Reason, req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d})
}

// ResolveRequest is the admin adjudication payload.
type ResolveRequest struct {
	WinnerID string `json:"winner_id" binding:"required"`
	Notes    string `json:"notes"`
}

// Resolve handles POST /admin/disputes/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	res, err := h.adj.Resolve(c.Request.Context(), c.Param("id"), req.WinnerID, req.Notes, "admin")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false, "error": "not_found",
			"message": "Dispute not found",
		})
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"success": false, "error": "already_resolved",
			"message": "Dispute has already been resolved",
		})
	case errors.Is(err, ErrAlreadyResponded):
		c.JSON(http.StatusConflict, gin.H{
			"success": false, "error": "already_responded",
			"message": "A response has already been filed",
		})
	case errors.Is(err, ErrNotPending):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "invalid_state",
			"message": "Dispute is not pending",
		})
	case errors.Is(err, ErrInvalidWinner):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "invalid_winner",
			"message": "Winner must be one of the bet's participants",
		})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false, "error": "forbidden",
			"message": "Not authorized for this dispute",
		})
	case errors.Is(err, ErrSettlementFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false, "error": "settlement_failed",
			"message": "Settlement failed; no state was changed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false, "error": "internal_error",
			"message": "Unexpected error",
		})
	}
}
