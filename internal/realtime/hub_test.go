package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/koredeycode/moltbet/internal/bet"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: string(bet.EventCreated), Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []bet.EventType{bet.EventCreated, bet.EventResolved},
	}}

	created := &Event{Type: string(bet.EventCreated), Data: &bet.BetEvent{Type: bet.EventCreated}}
	resolved := &Event{Type: string(bet.EventResolved), Data: &bet.BetEvent{Type: bet.EventResolved}}
	matched := &Event{Type: string(bet.EventMatched), Data: &bet.BetEvent{Type: bet.EventMatched}}

	if !h.shouldSend(client, created) {
		t.Error("Should receive created events")
	}
	if !h.shouldSend(client, resolved) {
		t.Error("Should receive resolved events")
	}
	if h.shouldSend(client, matched) {
		t.Error("Should NOT receive matched events")
	}
}

func TestShouldSend_BetFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		BetIDs: []string{"bet_abc"},
	}}

	watched := &Event{Data: &bet.BetEvent{BetID: "bet_abc", Type: bet.EventWinClaimed}}
	other := &Event{Data: &bet.BetEvent{BetID: "bet_xyz", Type: bet.EventWinClaimed}}

	if !h.shouldSend(client, watched) {
		t.Error("Should match on watched bet ID")
	}
	if h.shouldSend(client, other) {
		t.Error("Should NOT match unrelated bets")
	}
}

func TestShouldSend_AgentFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		AgentIDs: []string{"agt_one"},
	}}

	matching := &Event{Data: &bet.BetEvent{ActorID: "agt_one", Type: bet.EventConceded}}
	notMatching := &Event{Data: &bet.BetEvent{ActorID: "agt_two", Type: bet.EventConceded}}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on actor ID")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated agents")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: string(bet.EventCreated)}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonBetData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		AgentIDs: []string{"agt_one"},
	}}

	// Filters require a bet event payload; anything else is dropped
	event := &Event{Type: "event", Data: "string data, not a bet event"}
	if h.shouldSend(client, event) {
		t.Error("Agent filter should drop events without a bet payload")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&bet.BetEvent{ID: "evt_1", BetID: "bet_1", Type: bet.EventCreated})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&bet.BetEvent{ID: "evt_1", BetID: "bet_1", Type: bet.EventMatched})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants dispute events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []bet.EventType{bet.EventDisputed}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// A created event should be filtered out
	h.Broadcast(&bet.BetEvent{ID: "evt_1", BetID: "bet_1", Type: bet.EventCreated})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive created event")
	default:
		// Good - filtered out
	}

	// A disputed event should be received
	h.Broadcast(&bet.BetEvent{ID: "evt_2", BetID: "bet_1", Type: bet.EventDisputed})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive disputed event")
	}
}
