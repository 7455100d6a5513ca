package memory

import (
	"context"
	"sync"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// FundLedgerStore is an in-memory implementation of storage.FundLedgerStore.
type FundLedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FundLedgerEntry // keyed by entity_id
}

// NewFundLedgerStore creates a new in-memory fund ledger store.
func NewFundLedgerStore() *FundLedgerStore {
	return &FundLedgerStore{
		data: make(map[string]*domain.FundLedgerEntry),
	}
}

// Credit adds amount to an entity's running total, creating the entry
// if absent.
func (s *FundLedgerStore) Credit(_ context.Context, entityID string, amount int64, updatedAtMs int64) error {
	if entityID == "" || amount < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[entityID]
	if !exists {
		s.data[entityID] = &domain.FundLedgerEntry{
			EntityID:  entityID,
			Total:     amount,
			UpdatedAt: updatedAtMs,
		}
		return nil
	}

	e.Total += amount
	e.UpdatedAt = updatedAtMs
	return nil
}

// GetByEntity retrieves an entity's entry.
func (s *FundLedgerStore) GetByEntity(_ context.Context, entityID string) (*domain.FundLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[entityID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *e
	return &copy, nil
}

// SumAll returns the ledger-wide total in micro-USD.
func (s *FundLedgerStore) SumAll(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.data {
		total += e.Total
	}
	return total, nil
}

var _ storage.FundLedgerStore = (*FundLedgerStore)(nil)
