package bet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/koredeycode/moltbet/internal/dispute"
)

// MemoryStore is a thread-safe in-memory implementation. Used in
// development and tests; all methods return copies so callers can't
// mutate stored state behind the lock.
type MemoryStore struct {
	mu       sync.RWMutex
	bets     map[string]*Bet
	disputes map[string]*dispute.Dispute
	events   map[string][]*BetEvent // betID -> events, append order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bets:     make(map[string]*Bet),
		disputes: make(map[string]*dispute.Dispute),
		events:   make(map[string][]*BetEvent),
	}
}

var _ Store = (*MemoryStore)(nil)

func copyBet(b *Bet) *Bet {
	c := *b
	return &c
}

func copyDispute(d *dispute.Dispute) *dispute.Dispute {
	c := *d
	return &c
}

func copyEvent(ev *BetEvent) *BetEvent {
	c := *ev
	if ev.Metadata != nil {
		c.Metadata = make(map[string]any, len(ev.Metadata))
		for k, v := range ev.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (m *MemoryStore) CreateBet(ctx context.Context, b *Bet, ev *BetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bets[b.ID] = copyBet(b)
	if ev != nil {
		m.events[b.ID] = append(m.events[b.ID], copyEvent(ev))
	}
	return nil
}

func (m *MemoryStore) GetBet(ctx context.Context, id string) (*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBet(b), nil
}

func (m *MemoryStore) UpdateBet(ctx context.Context, b *Bet, expect Status, events ...*BetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateBetLocked(b, expect, events...)
}

// updateBetLocked applies the CAS update. Caller holds the lock.
func (m *MemoryStore) updateBetLocked(b *Bet, expect Status, events ...*BetEvent) error {
	cur, ok := m.bets[b.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expect {
		return ErrConflict
	}

	m.bets[b.ID] = copyBet(b)
	for _, ev := range events {
		m.events[b.ID] = append(m.events[b.ID], copyEvent(ev))
	}
	return nil
}

func (m *MemoryStore) ListFeed(ctx context.Context, q FeedQuery) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Bet
	for _, b := range m.bets {
		if !feedMatch(b, q) {
			continue
		}
		results = append(results, copyBet(b))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	return paginate(results, q.Offset, q.Limit), nil
}

func feedMatch(b *Bet, q FeedQuery) bool {
	if q.Status != "" {
		if b.Status != q.Status {
			return false
		}
	} else if b.Status != StatusOpen && b.Status != StatusCountered {
		return false
	}
	if q.Category != "" && b.Category != q.Category {
		return false
	}
	return true
}

func paginate(bets []*Bet, offset, limit int) []*Bet {
	if offset >= len(bets) {
		return nil
	}
	bets = bets[offset:]
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets
}

func (m *MemoryStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Bet
	for _, b := range m.bets {
		if b.ProposerID == agentID || b.CounterID == agentID {
			results = append(results, copyBet(b))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Bet
	for _, b := range m.bets {
		if b.Status == StatusOpen && !b.ExpiresAt.IsZero() && b.ExpiresAt.Before(before) {
			results = append(results, copyBet(b))
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (m *MemoryStore) ListClaimTimeouts(ctx context.Context, before time.Time, limit int) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Bet
	for _, b := range m.bets {
		if b.Status == StatusWinClaimed && b.WinClaimedAt != nil && b.WinClaimedAt.Before(before) {
			results = append(results, copyBet(b))
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, betID string) ([]*BetEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.events[betID]
	results := make([]*BetEvent, 0, len(events))
	for _, ev := range events {
		results = append(results, copyEvent(ev))
	}
	return results, nil
}

func (m *MemoryStore) CreateDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, ev *BetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateBetLocked(b, expect, ev); err != nil {
		return err
	}
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

func (m *MemoryStore) GetDispute(ctx context.Context, id string) (*dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, dispute.ErrNotFound
	}
	return copyDispute(d), nil
}

func (m *MemoryStore) UpdateDispute(ctx context.Context, d *dispute.Dispute, ev *BetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return dispute.ErrNotFound
	}
	m.disputes[d.ID] = copyDispute(d)
	if ev != nil {
		m.events[d.BetID] = append(m.events[d.BetID], copyEvent(ev))
	}
	return nil
}

func (m *MemoryStore) ResolveDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, events ...*BetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return dispute.ErrNotFound
	}
	if err := m.updateBetLocked(b, expect, events...); err != nil {
		return err
	}
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

func (m *MemoryStore) ListDisputes(ctx context.Context, status dispute.Status, limit int) ([]*dispute.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*dispute.Dispute
	for _, d := range m.disputes {
		if status != "" && d.Status != status {
			continue
		}
		results = append(results, copyDispute(d))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
