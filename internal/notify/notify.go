// Package notify delivers per-agent notifications for bet activity.
//
// Notifications are pull-based: the bet service writes them as
// transitions happen and agents drain their inbox over the API.
// Delivery failures can't lose money, so this layer is fire-and-forget
// from the caller's perspective.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/koredeycode/moltbet/internal/idgen"
)

var ErrNotFound = errors.New("notify: notification not found")

// Type of notification
type Type string

const (
	TypeBetCountered   Type = "bet_countered"
	TypeWinClaimed     Type = "win_claimed"
	TypeBetResolved    Type = "bet_resolved"
	TypeBetCancelled   Type = "bet_cancelled"
	TypeDisputeOpened  Type = "dispute_opened"
	TypeDisputeClosed  Type = "dispute_closed"
	TypeEvidenceWanted Type = "evidence_requested"
)

// Notification is one inbox entry
type Notification struct {
	ID        string    `json:"id"` // ntf_ prefix
	AgentID   string    `json:"agent_id"`
	Type      Type      `json:"type"`
	BetID     string    `json:"bet_id,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists notifications
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByAgent(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, agentID, id string) error
	MarkAllRead(ctx context.Context, agentID string) error
}

// Service writes and reads agent inboxes
type Service struct {
	store Store
}

// NewService creates the notification service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Push writes a notification to an agent's inbox
func (s *Service) Push(ctx context.Context, agentID string, typ Type, betID, message string) (*Notification, error) {
	n := &Notification{
		ID:        idgen.WithPrefix("ntf_"),
		AgentID:   agentID,
		Type:      typ,
		BetID:     betID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns an agent's notifications, newest first
func (s *Service) List(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByAgent(ctx, agentID, unreadOnly, limit)
}

// MarkRead marks a single notification as read
func (s *Service) MarkRead(ctx context.Context, agentID, id string) error {
	return s.store.MarkRead(ctx, agentID, id)
}

// MarkAllRead marks every notification in the inbox as read
func (s *Service) MarkAllRead(ctx context.Context, agentID string) error {
	return s.store.MarkAllRead(ctx, agentID)
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]*Notification // agentID -> notifications
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]*Notification)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[n.AgentID] = append(m.items[n.AgentID], n)
	return nil
}

func (m *MemoryStore) ListByAgent(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Notification
	for _, n := range m.items[agentID] {
		if unreadOnly && n.Read {
			continue
		}
		copy := *n
		results = append(results, &copy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, agentID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.items[agentID] {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) MarkAllRead(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.items[agentID] {
		n.Read = true
	}
	return nil
}
