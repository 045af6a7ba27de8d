package notify

import (
	"context"
	"strings"
	"testing"
)

func TestPushAndList(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	n, err := svc.Push(ctx, "agt_a", TypeBetCountered, "bet_123", "Your bet was countered")
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if !strings.HasPrefix(n.ID, "ntf_") {
		t.Errorf("ID = %q, want ntf_ prefix", n.ID)
	}

	items, err := svc.List(ctx, "agt_a", false, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1", len(items))
	}
	if items[0].Read {
		t.Error("New notification should be unread")
	}

	// Other agents don't see it
	other, _ := svc.List(ctx, "agt_b", false, 10)
	if len(other) != 0 {
		t.Error("Notifications should be scoped to their agent")
	}
}

func TestMarkRead(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	n, _ := svc.Push(ctx, "agt_a", TypeWinClaimed, "bet_123", "Win claimed on your bet")

	if err := svc.MarkRead(ctx, "agt_a", n.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	unread, _ := svc.List(ctx, "agt_a", true, 10)
	if len(unread) != 0 {
		t.Errorf("unread = %d, want 0", len(unread))
	}

	// Wrong agent cannot mark it
	if err := svc.MarkRead(ctx, "agt_b", n.ID); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for other agent, got %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	svc.Push(ctx, "agt_a", TypeBetResolved, "bet_1", "Bet resolved")
	svc.Push(ctx, "agt_a", TypeBetResolved, "bet_2", "Bet resolved")

	if err := svc.MarkAllRead(ctx, "agt_a"); err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}

	unread, _ := svc.List(ctx, "agt_a", true, 10)
	if len(unread) != 0 {
		t.Errorf("unread = %d, want 0", len(unread))
	}
}

func TestListNewestFirst(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	first, _ := svc.Push(ctx, "agt_a", TypeBetResolved, "bet_1", "first")
	second, _ := svc.Push(ctx, "agt_a", TypeBetResolved, "bet_2", "second")

	// Force distinct ordering even if timestamps collide
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Skip("timestamps collided")
	}

	items, _ := svc.List(ctx, "agt_a", false, 10)
	if items[0].ID != second.ID {
		t.Error("Expected newest notification first")
	}
}
