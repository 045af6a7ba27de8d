// Package bet implements the bet lifecycle: the state machine, its
// persistence, and the service that is the sole writer of a bet's
// status.
//
// Flow:
//  1. Proposer stakes and opens a bet              → open
//  2. A second agent matches the stake             → countered
//  3. Either side claims the win                   → win_claimed
//  4. Other side disputes, admin adjudicates       → disputed → resolved
//     or a side concedes                           → resolved
//  5. Proposer withdraws an unmatched offer        → cancelled
//
// The transitional resolving/cancelling statuses mark an in-flight
// settlement call so a crash between payout and commit is visible.
package bet

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("bet: not found")
	ErrInvalidState     = errors.New("bet: invalid status for this operation")
	ErrForbidden        = errors.New("bet: not authorized for this operation")
	ErrConflict         = errors.New("bet: lost a concurrent update race")
	ErrExpired          = errors.New("bet: offer has expired")
	ErrAlreadyResolved  = errors.New("bet: already resolved")
	ErrInvalidStake     = errors.New("bet: stake is malformed or out of bounds")
	ErrInvalidCategory  = errors.New("bet: unknown category")
	ErrRateLimited      = errors.New("bet: action rate limit exceeded")
	ErrSettlementFailed = errors.New("bet: settlement failed")
)

// Status of a bet.
type Status string

const (
	StatusOpen       Status = "open"        // Proposed, waiting for a counter
	StatusCountered  Status = "countered"   // Both stakes escrowed
	StatusWinClaimed Status = "win_claimed" // One side claims victory
	StatusDisputed   Status = "disputed"    // Claim contested, awaiting adjudication
	StatusResolving  Status = "resolving"   // Payout in flight
	StatusCancelling Status = "cancelling"  // Refund in flight
	StatusResolved   Status = "resolved"    // Winner paid, terminal
	StatusCancelled  Status = "cancelled"   // Stake refunded, terminal
)

// Category of a bet's proposition.
type Category string

const (
	CategorySports   Category = "sports"
	CategoryCrypto   Category = "crypto"
	CategoryPolitics Category = "politics"
	CategoryAI       Category = "ai"
	CategoryWeather  Category = "weather"
	CategoryOther    Category = "other"
)

// ValidCategory reports whether c is a known category. Empty is
// allowed; category is optional.
func ValidCategory(c Category) bool {
	switch c {
	case "", CategorySports, CategoryCrypto, CategoryPolitics, CategoryAI, CategoryWeather, CategoryOther:
		return true
	}
	return false
}

// Bet is the central entity: a 1v1 proposition with equal stakes.
type Bet struct {
	ID          string   `json:"id"` // bet_ prefix
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Terms       string   `json:"terms"`
	Category    Category `json:"category,omitempty"`

	Status Status `json:"status"`
	Stake  string `json:"stake"` // USDC, 6dp, identical for both sides

	ProposerID string `json:"proposer_id"`
	CounterID  string `json:"counter_id,omitempty"`

	WinClaimerID     string `json:"win_claimer_id,omitempty"`
	WinClaimEvidence string `json:"win_claim_evidence,omitempty"`
	WinnerID         string `json:"winner_id,omitempty"`

	EscrowTxHash     string `json:"escrow_tx_hash,omitempty"`     // Proposer's stake transfer
	ResolutionTxHash string `json:"resolution_tx_hash,omitempty"` // Payout or refund reference

	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CounteredAt  *time.Time `json:"countered_at,omitempty"`
	WinClaimedAt *time.Time `json:"win_claimed_at,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// IsTerminal returns true if the bet is in a final state.
func (b *Bet) IsTerminal() bool {
	return b.Status == StatusResolved || b.Status == StatusCancelled
}

// IsParticipant reports whether agentID is one of the two sides.
func (b *Bet) IsParticipant(agentID string) bool {
	return agentID != "" && (agentID == b.ProposerID || agentID == b.CounterID)
}

// OtherParticipant returns the counterparty of agentID, or "" if
// agentID is not a participant.
func (b *Bet) OtherParticipant(agentID string) string {
	switch agentID {
	case b.ProposerID:
		return b.CounterID
	case b.CounterID:
		return b.ProposerID
	}
	return ""
}

// Expired reports whether the offer deadline has passed.
func (b *Bet) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}

// ProposeRequest is the payload for opening a bet.
type ProposeRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Terms       string `json:"terms" binding:"required"`
	Category    string `json:"category"`
	Stake       string `json:"stake" binding:"required"`
	ExpiresIn   string `json:"expires_in"` // Duration string, e.g. "24h"
}

// FeedQuery filters the public bet feed.
type FeedQuery struct {
	Status   Status   // Exact status filter; empty means open+countered
	Category Category // Optional category filter
	Limit    int
	Offset   int
}
