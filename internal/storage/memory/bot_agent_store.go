package memory

import (
	"context"
	"sync"
	"time"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// BotAgentStore is an in-memory implementation of storage.BotAgentStore.
// ReserveSpend performs the reset-then-check-then-increment inside one
// critical section so concurrent requests for the same agent can never
// jointly exceed the daily limit.
type BotAgentStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.BotAgent
	byHash map[string]string // api_key_hash -> agent_id
}

// NewBotAgentStore creates a new in-memory bot agent store.
func NewBotAgentStore() *BotAgentStore {
	return &BotAgentStore{
		byID:   make(map[string]*domain.BotAgent),
		byHash: make(map[string]string),
	}
}

// Insert adds an agent. Returns ErrDuplicateKey if agent_id or
// api_key_hash exists.
func (s *BotAgentStore) Insert(_ context.Context, a *domain.BotAgent) error {
	if a == nil || a.AgentID == "" || a.APIKeyHash == "" || a.DailyLimit <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[a.AgentID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byHash[a.APIKeyHash]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.byID[a.AgentID] = &copy
	s.byHash[a.APIKeyHash] = a.AgentID
	return nil
}

// GetByID retrieves an agent.
func (s *BotAgentStore) GetByID(_ context.Context, agentID string) (*domain.BotAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.byID[agentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// GetByAPIKeyHash retrieves an agent by its key hash.
func (s *BotAgentStore) GetByAPIKeyHash(_ context.Context, hash string) (*domain.BotAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byHash[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *s.byID[id]
	return &copy, nil
}

// ReserveSpend atomically adds amount to the agent's daily spend.
func (s *BotAgentStore) ReserveSpend(_ context.Context, agentID string, amount int64, nowMs int64) error {
	if amount <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.byID[agentID]
	if !exists {
		return storage.ErrNotFound
	}

	if nowMs >= a.LimitResetAt {
		a.SpentToday = 0
		a.LimitResetAt = NextUTCMidnightMs(nowMs)
	}

	if a.SpentToday+amount > a.DailyLimit {
		return storage.ErrLimitExceeded
	}

	a.SpentToday += amount
	return nil
}

// ReleaseSpend returns previously reserved spend. The counter never goes
// below zero.
func (s *BotAgentStore) ReleaseSpend(_ context.Context, agentID string, amount int64) error {
	if amount <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.byID[agentID]
	if !exists {
		return storage.ErrNotFound
	}

	a.SpentToday -= amount
	if a.SpentToday < 0 {
		a.SpentToday = 0
	}
	return nil
}

// NextUTCMidnightMs returns the first UTC midnight strictly after nowMs.
// The daily spend counter resets deterministically at this boundary.
func NextUTCMidnightMs(nowMs int64) int64 {
	t := time.UnixMilli(nowMs).UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.UnixMilli()
}

var _ storage.BotAgentStore = (*BotAgentStore)(nil)
