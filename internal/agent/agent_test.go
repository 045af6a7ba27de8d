package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/koredeycode/moltbet/internal/auth"
	"github.com/koredeycode/moltbet/internal/reputation"
)

const payout = "0x1234567890123456789012345678901234567890"

func newTestService() *Service {
	return NewService(NewMemoryStore(), auth.NewManager(auth.NewMemoryStore()))
}

func TestRegister(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, rawKey, err := svc.Register(ctx, RegisterRequest{
		Name:          "oracle-bot",
		Description:   "Bets on oracle outcomes",
		PayoutAddress: payout,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !strings.HasPrefix(agent.ID, "agt_") {
		t.Errorf("ID = %q, want agt_ prefix", agent.ID)
	}
	if !strings.HasPrefix(rawKey, "sk_") {
		t.Errorf("API key = %q, want sk_ prefix", rawKey)
	}
	if agent.Status != StatusPendingClaim {
		t.Errorf("Status = %s, want pending_claim", agent.Status)
	}
	if agent.VerifiedAt != nil {
		t.Error("New agent should not carry a verification timestamp")
	}
	if agent.Score != 0 {
		t.Errorf("New agent score = %d, want 0", agent.Score)
	}
}

func TestRegister_InvalidAddress(t *testing.T) {
	svc := newTestService()

	_, _, err := svc.Register(context.Background(), RegisterRequest{
		Name:          "bad-bot",
		PayoutAddress: "not-an-address",
	})
	if err != ErrInvalidAddress {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

func TestRegister_DuplicateAddress(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout}); err != nil {
		t.Fatalf("First register failed: %v", err)
	}

	_, _, err := svc.Register(ctx, RegisterRequest{Name: "b", PayoutAddress: payout})
	if err != ErrExists {
		t.Errorf("Expected ErrExists for duplicate address, got %v", err)
	}
}

func TestRequireVerified(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, _, _ := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout})

	if _, err := svc.RequireVerified(ctx, agent.ID); err != ErrNotVerified {
		t.Errorf("Pending agent should be rejected, got %v", err)
	}

	if err := svc.Verify(ctx, agent.ID); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := svc.RequireVerified(ctx, agent.ID); err != nil {
		t.Errorf("Verified agent should pass: %v", err)
	}
	got, _ := svc.Get(ctx, agent.ID)
	if got.VerifiedAt == nil {
		t.Error("Verify should record the verification timestamp")
	}

	if err := svc.Suspend(ctx, agent.ID); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if _, err := svc.RequireVerified(ctx, agent.ID); err != ErrSuspended {
		t.Errorf("Expected ErrSuspended, got %v", err)
	}

	if err := svc.Reinstate(ctx, agent.ID); err != nil {
		t.Fatalf("Reinstate failed: %v", err)
	}
	if _, err := svc.RequireVerified(ctx, agent.ID); err != nil {
		t.Errorf("Reinstated agent should pass: %v", err)
	}
}

func TestReinstateDoesNotVerifyPending(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, _, _ := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout})

	if err := svc.Reinstate(ctx, agent.ID); err != nil {
		t.Fatalf("Reinstate failed: %v", err)
	}
	got, _ := svc.Get(ctx, agent.ID)
	if got.Status != StatusPendingClaim {
		t.Errorf("Status = %s, want pending_claim (reinstate only unfreezes)", got.Status)
	}
}

func TestRecordOutcome(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, _, _ := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout})

	// Concede win pays out double the stake
	if err := svc.RecordOutcome(ctx, agent.ID, reputation.EventConcede, true, "200.00"); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	got, _ := svc.Get(ctx, agent.ID)
	if got.Score != 5 {
		t.Errorf("Score = %d, want 5", got.Score)
	}
	if got.BetsWon != 1 || got.BetsLost != 0 {
		t.Errorf("Counters = %d/%d, want 1/0", got.BetsWon, got.BetsLost)
	}
	if got.TotalWon != "200.000000" {
		t.Errorf("TotalWon = %q, want 200.000000", got.TotalWon)
	}

	// Dispute loss costs 5 and updates dispute counters
	if err := svc.RecordOutcome(ctx, agent.ID, reputation.EventDisputeResolved, false, ""); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	got, _ = svc.Get(ctx, agent.ID)
	if got.Score != 0 {
		t.Errorf("Score = %d, want 0", got.Score)
	}
	if got.DisputesLost != 1 {
		t.Errorf("DisputesLost = %d, want 1", got.DisputesLost)
	}

	// A second loss takes the score negative
	if err := svc.RecordOutcome(ctx, agent.ID, reputation.EventDisputeResolved, false, ""); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	got, _ = svc.Get(ctx, agent.ID)
	if got.Score != -5 {
		t.Errorf("Score = %d, want -5", got.Score)
	}
}

func TestRecordStake(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	agent, _, _ := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout})

	svc.RecordStake(ctx, agent.ID, "100.00")
	svc.RecordStake(ctx, agent.ID, "50.50")

	got, _ := svc.Get(ctx, agent.ID)
	if got.TotalStaked != "150.500000" {
		t.Errorf("TotalStaked = %q, want 150.500000", got.TotalStaked)
	}
}

func TestListSortsByScore(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, auth.NewManager(auth.NewMemoryStore()))
	ctx := context.Background()

	a, _, _ := svc.Register(ctx, RegisterRequest{Name: "a", PayoutAddress: payout})
	b, _, _ := svc.Register(ctx, RegisterRequest{Name: "b", PayoutAddress: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"})

	svc.RecordOutcome(ctx, b.ID, reputation.EventConcede, true, "")

	agents, err := svc.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("len = %d, want 2", len(agents))
	}
	if agents[0].ID != b.ID {
		t.Errorf("Expected highest score first, got %s", agents[0].ID)
	}
	_ = a
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	agent := &Agent{ID: "agt_x", Name: "a", PayoutAddress: payout}
	if err := store.Create(ctx, agent); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := store.Get(ctx, "agt_x")
	got.Score = 999

	again, _ := store.Get(ctx, "agt_x")
	if again.Score != 0 {
		t.Error("Mutating a returned agent should not affect the store")
	}
}
