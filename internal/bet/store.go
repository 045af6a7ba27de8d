package bet

import (
	"context"
	"time"

	"github.com/koredeycode/moltbet/internal/dispute"
)

// Store persists bets, disputes, and the event log. A bet and its
// dispute form one locking unit: every transition method is atomic and
// guards the bet's status with a compare-and-swap, returning
// ErrConflict when the stored status no longer matches expect.
type Store interface {
	CreateBet(ctx context.Context, b *Bet, ev *BetEvent) error
	GetBet(ctx context.Context, id string) (*Bet, error)
	// UpdateBet writes b and appends events iff the stored status
	// still equals expect.
	UpdateBet(ctx context.Context, b *Bet, expect Status, events ...*BetEvent) error

	ListFeed(ctx context.Context, q FeedQuery) ([]*Bet, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*Bet, error)
	// ListExpired returns open bets whose offer deadline passed before
	// the given time.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Bet, error)
	// ListClaimTimeouts returns win_claimed bets whose claim was filed
	// before the given time.
	ListClaimTimeouts(ctx context.Context, before time.Time, limit int) ([]*Bet, error)

	ListEvents(ctx context.Context, betID string) ([]*BetEvent, error)

	// CreateDispute inserts d and moves the bet to disputed in one
	// transaction, guarded by expect.
	CreateDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, ev *BetEvent) error
	GetDispute(ctx context.Context, id string) (*dispute.Dispute, error)
	// UpdateDispute writes d and appends an event; the bet row is
	// untouched (used for rebuttals).
	UpdateDispute(ctx context.Context, d *dispute.Dispute, ev *BetEvent) error
	// ResolveDispute finalizes the dispute and the bet in one
	// transaction, guarded by expect on the bet's status.
	ResolveDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, events ...*BetEvent) error
	ListDisputes(ctx context.Context, status dispute.Status, limit int) ([]*dispute.Dispute, error)
}
