package bet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/koredeycode/moltbet/internal/agent"
	"github.com/koredeycode/moltbet/internal/auth"
	"github.com/koredeycode/moltbet/internal/paywall"
	"github.com/koredeycode/moltbet/internal/validation"
)

// Handler provides HTTP handlers for the bet lifecycle.
type Handler struct {
	svc  *Service
	gate *paywall.Gate
}

// NewHandler creates a bet handler. The gate collects stake payments
// for propose and counter.
func NewHandler(svc *Service, gate *paywall.Gate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

// RegisterRoutes sets up bet routes. The caller applies auth to the
// authed group.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.GET("/feed", h.Feed)
	public.GET("/bets/:id", validation.BetIDParamMiddleware(), h.Get)
	public.GET("/bets/:id/events", validation.BetIDParamMiddleware(), h.Events)

	authed.POST("/bets", h.Propose)
	authed.GET("/bets/mine", h.Mine)
	authed.POST("/bets/:id/counter", validation.BetIDParamMiddleware(), h.Counter)
	authed.POST("/bets/:id/claim-win", validation.BetIDParamMiddleware(), h.ClaimWin)
	authed.POST("/bets/:id/concede", validation.BetIDParamMiddleware(), h.Concede)
	authed.POST("/bets/:id/dispute", validation.BetIDParamMiddleware(), h.Dispute)
	authed.POST("/bets/:id/cancel", validation.BetIDParamMiddleware(), h.Cancel)
}

// Propose handles POST /bets. The stake is collected through the
// payment gate before the bet is created.
func (h *Handler) Propose(c *gin.Context) {
	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	agentID := auth.GetAuthenticatedAgent(c)

	// Reject everything rejectable before asking for money
	if err := h.svc.CheckPropose(c.Request.Context(), agentID, req); err != nil {
		respondError(c, err)
		return
	}

	proof, ok := h.gate.Require(c, req.Stake, "Stake for proposed bet")
	if !ok {
		return
	}

	b, err := h.svc.Propose(c.Request.Context(), agentID, req, proof.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": b})
}

// Counter handles POST /bets/:id/counter. The matching stake is
// collected through the payment gate; a lost race after payment is
// refunded by the service.
func (h *Handler) Counter(c *gin.Context) {
	agentID := auth.GetAuthenticatedAgent(c)
	betID := c.Param("id")

	b, err := h.svc.CheckCounter(c.Request.Context(), betID, agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	proof, ok := h.gate.Require(c, b.Stake, "Matching stake for bet "+b.ID)
	if !ok {
		return
	}

	b, err = h.svc.Counter(c.Request.Context(), betID, agentID, proof.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": b})
}

// ClaimWinRequest carries the claimant's evidence.
type ClaimWinRequest struct {
	Evidence string `json:"evidence" binding:"required"`
}

// ClaimWin handles POST /bets/:id/claim-win
func (h *Handler) ClaimWin(c *gin.Context) {
	var req ClaimWinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.svc.ClaimWin(c.Request.Context(), c.Param("id"), auth.GetAuthenticatedAgent(c), req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": b})
}

// Concede handles POST /bets/:id/concede
func (h *Handler) Concede(c *gin.Context) {
	b, err := h.svc.Concede(c.Request.Context(), c.Param("id"), auth.GetAuthenticatedAgent(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": b})
}

// DisputeRequest carries the disputer's case.
type DisputeRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Evidence string `json:"evidence"`
}

// Dispute handles POST /bets/:id/dispute
func (h *Handler) Dispute(c *gin.Context) {
	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	d, err := h.svc.OpenDispute(c.Request.Context(), c.Param("id"), auth.GetAuthenticatedAgent(c), req.Reason, req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": d})
}

// Cancel handles POST /bets/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	b, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), auth.GetAuthenticatedAgent(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": b})
}

// Get handles GET /bets/:id
func (h *Handler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": b})
}

// Feed handles GET /feed
func (h *Handler) Feed(c *gin.Context) {
	q := FeedQuery{
		Status:   Status(c.Query("status")),
		Category: Category(c.Query("category")),
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
	}

	bets, err := h.svc.Feed(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"bets": bets, "count": len(bets)},
	})
}

// Mine handles GET /bets/mine
func (h *Handler) Mine(c *gin.Context) {
	bets, err := h.svc.Mine(c.Request.Context(), auth.GetAuthenticatedAgent(c), intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"bets": bets, "count": len(bets)},
	})
}

// Events handles GET /bets/:id/events
func (h *Handler) Events(c *gin.Context) {
	events, err := h.svc.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"events": events, "count": len(events)},
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "validation_error",
		"message": message,
	})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || errors.Is(err, agent.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false, "error": "not_found",
			"message": "Bet not found",
		})
	case errors.Is(err, ErrExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "offer_expired",
			"message": "The offer deadline has passed",
		})
	case errors.Is(err, ErrInvalidStake):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "invalid_stake",
			"message": "Stake is malformed or out of bounds",
		})
	case errors.Is(err, ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "invalid_category",
			"message": "Unknown bet category",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "invalid_state",
			"message": "Bet is not in a valid status for this action",
		})
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"success": false, "error": "already_resolved",
			"message": "Bet has already reached a terminal state",
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"success": false, "error": "conflict",
			"message": "A concurrent action won the race; any collected stake is refunded",
		})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false, "error": "forbidden",
			"message": "Not authorized for this action",
		})
	case errors.Is(err, agent.ErrNotVerified):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false, "error": "agent_not_verified",
			"message": "Agent must be verified before betting",
		})
	case errors.Is(err, agent.ErrSuspended):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false, "error": "agent_suspended",
			"message": "Agent account is suspended",
		})
	case errors.Is(err, ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false, "error": "rate_limited",
			"message": "Action rate limit exceeded; slow down",
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
