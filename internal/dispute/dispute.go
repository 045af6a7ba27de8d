// Package dispute holds dispute records and the admin adjudication
// surface.
//
// A dispute contests a win claim on a bet. The bet service owns every
// dispute mutation so the dispute and its parent bet always change in
// one transaction; this package defines the record plus a thin
// Adjudicator that validates input and delegates.
package dispute

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("dispute: not found")
	ErrAlreadyResolved  = errors.New("dispute: already resolved")
	ErrAlreadyResponded = errors.New("dispute: response already filed")
	ErrNotPending       = errors.New("dispute: not pending")
	ErrInvalidWinner    = errors.New("dispute: winner is not a bet participant")
	ErrForbidden        = errors.New("dispute: not authorized for this dispute")
	ErrSettlementFailed = errors.New("dispute: settlement failed")
)

// Status of a dispute.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Dispute contests a win claim. A bet carries at most one pending
// dispute at a time.
type Dispute struct {
	ID         string `json:"id"` // dsp_ prefix
	BetID      string `json:"bet_id"`
	RaisedByID string `json:"raised_by_id"`

	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`

	// Rebuttal from the claimed winner, at most one
	CounterReason   string     `json:"counter_reason,omitempty"`
	CounterEvidence string     `json:"counter_evidence,omitempty"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`

	Status          Status `json:"status"`
	ResolvedByID    string `json:"resolved_by_id,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
	WinnerID        string `json:"winner_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Resolution is the outcome of an adjudication.
type Resolution struct {
	WinnerID      string `json:"winner_id"`
	SettlementRef string `json:"settlement_ref"`
}

// Backend is the slice of the bet lifecycle service the adjudicator
// delegates to. Keeping it here avoids an import cycle: the bet
// package implements this, never the other way around.
type Backend interface {
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	ListDisputes(ctx context.Context, status Status, limit int) ([]*Dispute, error)
	RespondToDispute(ctx context.Context, disputeID, actorID, reason, evidence string) (*Dispute, error)
	ResolveDispute(ctx context.Context, disputeID, winnerID, notes, resolvedBy string) (*Resolution, error)
}

// Adjudicator is the admin-facing dispute orchestrator.
type Adjudicator struct {
	backend Backend
}

// NewAdjudicator creates an adjudicator over the bet service.
func NewAdjudicator(b Backend) *Adjudicator {
	return &Adjudicator{backend: b}
}

// Get returns a dispute by ID.
func (a *Adjudicator) Get(ctx context.Context, id string) (*Dispute, error) {
	return a.backend.GetDispute(ctx, id)
}

// List returns disputes filtered by status, newest first.
func (a *Adjudicator) List(ctx context.Context, status Status, limit int) ([]*Dispute, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return a.backend.ListDisputes(ctx, status, limit)
}

// Respond files the claimed winner's rebuttal on a pending dispute.
func (a *Adjudicator) Respond(ctx context.Context, disputeID, actorID, reason, evidence string) (*Dispute, error) {
	return a.backend.RespondToDispute(ctx, disputeID, actorID, reason, evidence)
}

// Resolve settles a pending dispute in favor of winnerID. The payout
// and the bet-side resolution happen inside the bet service so the two
// records can never diverge.
func (a *Adjudicator) Resolve(ctx context.Context, disputeID, winnerID, notes, resolvedBy string) (*Resolution, error) {
	if winnerID == "" {
		return nil, ErrInvalidWinner
	}
	return a.backend.ResolveDispute(ctx, disputeID, winnerID, notes, resolvedBy)
}
