package memory

import (
	"context"
	"sort"
	"sync"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by tx_hash
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a trade. Returns ErrDuplicateKey if tx_hash exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TxHash == "" || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TxHash] = &copy
	return nil
}

// GetByTxHash retrieves a trade by transaction hash.
func (s *TradeStore) GetByTxHash(_ context.Context, txHash string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[txHash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByActor retrieves all trades for an actor, newest first.
func (s *TradeStore) GetByActor(_ context.Context, actorID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.ActorID == actorID {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// GetByStatus retrieves all trades in the given status, oldest first.
func (s *TradeStore) GetByStatus(_ context.Context, status string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status == status {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// MarkConfirmed transitions a PENDING trade to CONFIRMED. Returns false
// if the trade was not PENDING.
func (s *TradeStore) MarkConfirmed(_ context.Context, txHash string, blockNumber uint64, settledAtMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[txHash]
	if !exists {
		return false, storage.ErrNotFound
	}
	if t.Status != domain.TradeStatusPending {
		return false, nil
	}

	t.Status = domain.TradeStatusConfirmed
	t.BlockNumber = blockNumber
	t.SettledAt = settledAtMs
	return true, nil
}

// MarkFailed transitions a PENDING trade to FAILED. Returns false if the
// trade was not PENDING.
func (s *TradeStore) MarkFailed(_ context.Context, txHash string, reason string, settledAtMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[txHash]
	if !exists {
		return false, storage.ErrNotFound
	}
	if t.Status != domain.TradeStatusPending {
		return false, nil
	}

	t.Status = domain.TradeStatusFailed
	t.FailReason = reason
	t.SettledAt = settledAtMs
	return true, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
