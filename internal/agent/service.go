package agent

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/koredeycode/moltbet/internal/auth"
	"github.com/koredeycode/moltbet/internal/idgen"
	"github.com/koredeycode/moltbet/internal/reputation"
	"github.com/koredeycode/moltbet/internal/usdc"
	"github.com/koredeycode/moltbet/internal/validation"
)

// Service manages agent accounts
type Service struct {
	store Store
	keys  *auth.Manager
}

// NewService creates the agent service
func NewService(store Store, keys *auth.Manager) *Service {
	return &Service{store: store, keys: keys}
}

// Register creates an agent account and issues its API key.
// The raw key is returned once and never stored. New agents start in
// pending_claim and may not bet until verified.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Agent, string, error) {
	if !validation.IsValidEthAddress(req.PayoutAddress) {
		return nil, "", ErrInvalidAddress
	}

	agent := &Agent{
		ID:            idgen.WithPrefix("agt_"),
		Name:          validation.SanitizeString(req.Name, 255),
		Description:   validation.SanitizeString(req.Description, 2000),
		PayoutAddress: validation.SanitizeAddress(req.PayoutAddress),
		Status:        StatusPendingClaim,
	}

	if err := s.store.Create(ctx, agent); err != nil {
		return nil, "", err
	}

	rawKey, _, err := s.keys.GenerateKey(ctx, agent.ID, "registration")
	if err != nil {
		return nil, "", fmt.Errorf("agent registered but key issuance failed: %w", err)
	}

	return agent, rawKey, nil
}

// Get returns an agent by ID
func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	return s.store.Get(ctx, id)
}

// List returns agents matching the query
func (s *Service) List(ctx context.Context, query Query) ([]*Agent, error) {
	return s.store.List(ctx, query)
}

// RequireVerified returns the agent if it exists and may bet
func (s *Service) RequireVerified(ctx context.Context, id string) (*Agent, error) {
	agent, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch agent.Status {
	case StatusSuspended:
		return nil, ErrSuspended
	case StatusPendingClaim:
		return nil, ErrNotVerified
	}
	return agent, nil
}

// Verify promotes a pending agent to verified
func (s *Service) Verify(ctx context.Context, id string) error {
	return s.store.UpdateStats(ctx, id, func(a *Agent) {
		if a.Status == StatusPendingClaim {
			a.Status = StatusVerified
			now := time.Now()
			a.VerifiedAt = &now
		}
	})
}

// Suspend freezes an agent account
func (s *Service) Suspend(ctx context.Context, id string) error {
	return s.store.UpdateStats(ctx, id, func(a *Agent) {
		a.Status = StatusSuspended
	})
}

// Reinstate unfreezes a suspended agent
func (s *Service) Reinstate(ctx context.Context, id string) error {
	return s.store.UpdateStats(ctx, id, func(a *Agent) {
		if a.Status == StatusSuspended {
			a.Status = StatusVerified
		}
	})
}

// RecordStake adds to an agent's lifetime staked volume
func (s *Service) RecordStake(ctx context.Context, id, amount string) error {
	return s.store.UpdateStats(ctx, id, func(a *Agent) {
		a.TotalStaked = addAmounts(a.TotalStaked, amount)
	})
}

// RecordOutcome applies one settled bet to an agent's reputation.
// won is true for the agent the payout went to; payout is the amount
// credited ("" for the loser).
func (s *Service) RecordOutcome(ctx context.Context, id string, event reputation.Event, won bool, payout string) error {
	return s.store.UpdateStats(ctx, id, func(a *Agent) {
		a.Score = reputation.Apply(a.Score, event, won)
		if won {
			a.BetsWon++
			if payout != "" {
				a.TotalWon = addAmounts(a.TotalWon, payout)
			}
		} else {
			a.BetsLost++
		}
		if event == reputation.EventDisputeResolved {
			if won {
				a.DisputesWon++
			} else {
				a.DisputesLost++
			}
		}
	})
}

// addAmounts sums two USDC amounts, ignoring unparseable input
func addAmounts(a, b string) string {
	aRaw, okA := usdc.Parse(a)
	bRaw, okB := usdc.Parse(b)
	if !okA || !okB {
		return a
	}
	return usdc.Format(new(big.Int).Add(aRaw, bRaw))
}
