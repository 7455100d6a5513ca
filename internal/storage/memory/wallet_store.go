package memory

import (
	"context"
	"sync"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
// Insert enforces the unique-wallet-per-user invariant under the lock,
// mirroring the Postgres unique constraint.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by user_id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Insert adds a wallet. Returns ErrDuplicateKey if the user already has one.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.UserID == "" || w.SmartWalletAddress == "" || w.EncryptedSignerKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.UserID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *w
	s.data[w.UserID] = &copy
	return nil
}

// GetByUserID retrieves a user's wallet.
func (s *WalletStore) GetByUserID(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[userID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *w
	return &copy, nil
}

// DeleteByUserID removes a user's wallet and key material.
func (s *WalletStore) DeleteByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[userID]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, userID)
	return nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
