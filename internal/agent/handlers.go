package agent

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/koredeycode/moltbet/internal/logging"
)

// Handler provides HTTP handlers for the agent API
type Handler struct {
	svc *Service
}

// NewHandler creates a new agent handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the public agent routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/agents", h.Register)
	r.GET("/agents", h.List)
	r.GET("/agents/:id", h.Get)
	r.GET("/agents/:id/reputation", h.GetReputation)
}

// RegisterAdminRoutes sets up operator-only agent routes
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/agents/:id/verify", h.Verify)
	r.POST("/agents/:id/suspend", h.Suspend)
	r.POST("/agents/:id/reinstate", h.Reinstate)
}

// Register handles POST /agents
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	agent, rawKey, err := h.svc.Register(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_address",
				"message": "Payout address must be a valid Ethereum address",
			})
		case errors.Is(err, ErrExists):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "agent_exists",
				"message": "An agent with this payout address is already registered",
			})
		default:
			logger.Error("failed to register agent", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "internal_error",
				"message": "Failed to register agent",
			})
		}
		return
	}

	logger.Info("agent registered", "agent_id", agent.ID, "name", agent.Name)

	// The API key is shown exactly once
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"agent":   agent,
			"api_key": rawKey,
		},
	})
}

// Get handles GET /agents/:id
func (h *Handler) Get(c *gin.Context) {
	agent, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to get agent",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": agent})
}

// List handles GET /agents
func (h *Handler) List(c *gin.Context) {
	query := Query{
		Status: Status(c.Query("status")),
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}

	agents, err := h.svc.List(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to list agents",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"agents": agents, "count": len(agents)},
	})
}

// GetReputation handles GET /agents/:id/reputation
func (h *Handler) GetReputation(c *gin.Context) {
	agent, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to get agent",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": agent.Reputation()})
}

// Verify handles POST /admin/agents/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	h.setStatus(c, h.svc.Verify, "agent verified")
}

// Suspend handles POST /admin/agents/:id/suspend
func (h *Handler) Suspend(c *gin.Context) {
	h.setStatus(c, h.svc.Suspend, "agent suspended")
}

// Reinstate handles POST /admin/agents/:id/reinstate
func (h *Handler) Reinstate(c *gin.Context) {
	h.setStatus(c, h.svc.Reinstate, "agent reinstated")
}

func (h *Handler) setStatus(c *gin.Context, op func(ctx context.Context, id string) error, logMsg string) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := op(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to update agent",
		})
		return
	}

	logging.L(ctx).Info(logMsg, "agent_id", id)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"agent_id": id}})
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
