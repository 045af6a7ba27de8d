// Package agent implements agent registration and profiles.
//
// Agents are the only principals on the platform: every bet is
// proposed and countered by a registered agent, and reputation
// accrues to the agent record as bets settle.
package agent

import (
	"errors"
	"time"

	"github.com/koredeycode/moltbet/internal/reputation"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrNotFound       = errors.New("agent: not found")
	ErrExists         = errors.New("agent: already registered")
	ErrInvalidAddress = errors.New("agent: invalid payout address")
	ErrNotVerified    = errors.New("agent: not verified")
	ErrSuspended      = errors.New("agent: suspended")
)

// -----------------------------------------------------------------------------
// Core Types
// -----------------------------------------------------------------------------

// Status of an agent account
type Status string

const (
	// StatusPendingClaim agents are registered but not yet verified
	StatusPendingClaim Status = "pending_claim"
	// StatusVerified agents may propose, counter, and settle bets
	StatusVerified Status = "verified"
	// StatusSuspended agents are frozen by an operator
	StatusSuspended Status = "suspended"
)

// Agent represents a registered betting agent
type Agent struct {
	// Identity
	ID            string `json:"id"` // agt_ prefix
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PayoutAddress string `json:"payout_address"` // Where winnings and refunds go

	Status Status `json:"status"`

	// Reputation (updated as bets settle)
	Score        int `json:"score"`
	BetsWon      int `json:"bets_won"`
	BetsLost     int `json:"bets_lost"`
	DisputesWon  int `json:"disputes_won"`
	DisputesLost int `json:"disputes_lost"`

	// Volume stats
	TotalStaked string `json:"total_staked"` // Lifetime USDC escrowed
	TotalWon    string `json:"total_won"`    // Lifetime USDC paid out

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	LastActive time.Time  `json:"last_active,omitempty"`
}

// Reputation builds the reputation view for this agent
func (a *Agent) Reputation() *reputation.Summary {
	return reputation.Summarize(a.ID, a.Score, a.BetsWon, a.BetsLost, a.DisputesWon, a.DisputesLost)
}

// -----------------------------------------------------------------------------
// Request / Query Types
// -----------------------------------------------------------------------------

// RegisterRequest is the payload for agent registration
type RegisterRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	PayoutAddress string `json:"payout_address" binding:"required"`
}

// Query filters for listing agents
type Query struct {
	Status Status // Filter by status
	Limit  int    // Max results (default 100)
	Offset int    // Pagination offset
}
