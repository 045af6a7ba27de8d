package agent

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store defines the persistence interface for agents
type Store interface {
	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	GetByAddress(ctx context.Context, payoutAddress string) (*Agent, error)
	Update(ctx context.Context, agent *Agent) error
	List(ctx context.Context, query Query) ([]*Agent, error)
	// UpdateStats applies fn to the agent record under the store's lock
	UpdateStats(ctx context.Context, id string, fn func(*Agent)) error
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent // id -> agent
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]*Agent)}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agent.ID]; exists {
		return ErrExists
	}

	// One agent per payout address
	addr := strings.ToLower(agent.PayoutAddress)
	for _, a := range m.agents {
		if strings.ToLower(a.PayoutAddress) == addr {
			return ErrExists
		}
	}

	agent.PayoutAddress = addr
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = time.Now()
	if agent.Status == "" {
		agent.Status = StatusPendingClaim
	}
	if agent.TotalStaked == "" {
		agent.TotalStaked = "0"
	}
	if agent.TotalWon == "" {
		agent.TotalWon = "0"
	}

	m.agents[agent.ID] = agent
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, exists := m.agents[id]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent mutation
	copy := *agent
	return &copy, nil
}

func (m *MemoryStore) GetByAddress(ctx context.Context, payoutAddress string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addr := strings.ToLower(payoutAddress)
	for _, agent := range m.agents {
		if strings.ToLower(agent.PayoutAddress) == addr {
			copy := *agent
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agent.ID]; !exists {
		return ErrNotFound
	}

	agent.UpdatedAt = time.Now()
	m.agents[agent.ID] = agent
	return nil
}

func (m *MemoryStore) List(ctx context.Context, query Query) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if query.Limit == 0 {
		query.Limit = 100
	}

	var results []*Agent
	for _, agent := range m.agents {
		if query.Status != "" && agent.Status != query.Status {
			continue
		}
		copy := *agent
		results = append(results, &copy)
	}

	// Sort by score (best reputation first)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})

	// Apply pagination
	if query.Offset >= len(results) {
		return []*Agent{}, nil
	}
	end := query.Offset + query.Limit
	if end > len(results) {
		end = len(results)
	}

	return results[query.Offset:end], nil
}

func (m *MemoryStore) UpdateStats(ctx context.Context, id string, fn func(*Agent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, exists := m.agents[id]
	if !exists {
		return ErrNotFound
	}

	fn(agent)
	agent.UpdatedAt = time.Now()
	return nil
}
