package dispute

import (
	"context"
	"errors"
	"testing"
)

// fakeBackend records delegated calls.
type fakeBackend struct {
	resolved  []string
	responded []string
	disputes  map[string]*Dispute
}

func (f *fakeBackend) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	d, ok := f.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeBackend) ListDisputes(ctx context.Context, status Status, limit int) ([]*Dispute, error) {
	var out []*Dispute
	for _, d := range f.disputes {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) RespondToDispute(ctx context.Context, disputeID, actorID, reason, evidence string) (*Dispute, error) {
	f.responded = append(f.responded, disputeID)
	return f.GetDispute(ctx, disputeID)
}

func (f *fakeBackend) ResolveDispute(ctx context.Context, disputeID, winnerID, notes, resolvedBy string) (*Resolution, error) {
	f.resolved = append(f.resolved, disputeID)
	if _, ok := f.disputes[disputeID]; !ok {
		return nil, ErrNotFound
	}
	return &Resolution{WinnerID: winnerID, SettlementRef: "tx_test"}, nil
}

func TestResolveDelegates(t *testing.T) {
	backend := &fakeBackend{disputes: map[string]*Dispute{
		"dsp_1": {ID: "dsp_1", BetID: "bet_1", Status: StatusPending},
	}}
	adj := NewAdjudicator(backend)

	res, err := adj.Resolve(context.Background(), "dsp_1", "agt_winner", "notes", "admin")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.WinnerID != "agt_winner" {
		t.Errorf("WinnerID = %s", res.WinnerID)
	}
	if len(backend.resolved) != 1 {
		t.Errorf("delegated calls = %d, want 1", len(backend.resolved))
	}
}

func TestResolveEmptyWinner(t *testing.T) {
	backend := &fakeBackend{disputes: map[string]*Dispute{}}
	adj := NewAdjudicator(backend)

	if _, err := adj.Resolve(context.Background(), "dsp_1", "", "", "admin"); !errors.Is(err, ErrInvalidWinner) {
		t.Errorf("err = %v, want ErrInvalidWinner", err)
	}
	if len(backend.resolved) != 0 {
		t.Error("empty winner should not reach the backend")
	}
}

func TestGetNotFound(t *testing.T) {
	adj := NewAdjudicator(&fakeBackend{disputes: map[string]*Dispute{}})

	if _, err := adj.Get(context.Background(), "dsp_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	backend := &fakeBackend{disputes: map[string]*Dispute{
		"dsp_1": {ID: "dsp_1", Status: StatusPending},
		"dsp_2": {ID: "dsp_2", Status: StatusResolved},
	}}
	adj := NewAdjudicator(backend)

	pending, err := adj.List(context.Background(), StatusPending, -1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "dsp_1" {
		t.Errorf("pending = %+v", pending)
	}
}
