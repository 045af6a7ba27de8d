package bet

import (
	"encoding/json"
	"time"

	"github.com/koredeycode/moltbet/internal/idgen"
)

// EventType classifies a bet audit log entry.
type EventType string

const (
	EventCreated         EventType = "created"
	EventMatched         EventType = "matched"
	EventWinClaimed      EventType = "win_claimed"
	EventConceded        EventType = "conceded"
	EventDisputed        EventType = "disputed"
	EventDisputeResponse EventType = "dispute_response"
	EventResolved        EventType = "resolved"
	EventCancelled       EventType = "cancelled"
)

// BetEvent is an append-only audit log entry. Events are never updated
// or deleted; most transitions insert one, concede inserts two.
type BetEvent struct {
	ID        string         `json:"id"` // evt_ prefix
	BetID     string         `json:"bet_id"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Per-type event payloads. Each transition serializes one of these
// into the event metadata, so the set of shapes stays closed.

type CreatedPayload struct {
	Stake    string `json:"stake"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

type MatchedPayload struct {
	CounterID string `json:"counter_id"`
	Stake     string `json:"stake"`
	EscrowTx  string `json:"escrow_tx,omitempty"`
}

type WinClaimedPayload struct {
	ClaimerID string `json:"claimer_id"`
	Evidence  string `json:"evidence,omitempty"`
}

type ConcededPayload struct {
	ConcededByID string `json:"conceded_by_id"`
}

type DisputedPayload struct {
	DisputeID  string `json:"dispute_id"`
	RaisedByID string `json:"raised_by_id"`
	Reason     string `json:"reason"`
}

type DisputeResponsePayload struct {
	DisputeID   string `json:"dispute_id"`
	ResponderID string `json:"responder_id"`
}

type ResolvedPayload struct {
	WinnerID      string `json:"winner_id"`
	SettlementRef string `json:"settlement_ref,omitempty"`
	Mode          string `json:"mode"` // concede, dispute, timeout
}

type CancelledPayload struct {
	Reason    string `json:"reason,omitempty"` // "" for proposer cancel, "expired" for sweep
	RefundRef string `json:"refund_ref,omitempty"`
}

// newEvent builds an audit entry with the payload flattened into the
// metadata map.
func newEvent(betID, actorID string, typ EventType, payload any) *BetEvent {
	return &BetEvent{
		ID:        idgen.WithPrefix("evt_"),
		BetID:     betID,
		ActorID:   actorID,
		Type:      typ,
		Metadata:  toMetadata(payload),
		CreatedAt: time.Now(),
	}
}

func toMetadata(payload any) map[string]any {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
