package memory

import (
	"context"
	"sort"
	"sync"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.Token
	byName map[string]int64
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID:   make(map[int64]*domain.Token),
		byName: make(map[string]int64),
	}
}

// Insert adds a new token. Returns ErrDuplicateKey if token_id or
// artist_name exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.TokenID <= 0 || t.ArtistName == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.TokenID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byName[t.ArtistName]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.byID[t.TokenID] = &copy
	s.byName[t.ArtistName] = t.TokenID
	return nil
}

// GetByID retrieves a token by its chain identity.
func (s *TokenStore) GetByID(_ context.Context, tokenID int64) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byID[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByArtistName retrieves a token by its unique artist name.
func (s *TokenStore) GetByArtistName(_ context.Context, artistName string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byName[artistName]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *s.byID[id]
	return &copy, nil
}

// ListActive retrieves all active tokens ordered by artist name.
func (s *TokenStore) ListActive(_ context.Context) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Token
	for _, t := range s.byID {
		if t.IsActive {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ArtistName < result[j].ArtistName
	})

	return result, nil
}

// UpdateSupply records the confirmed on-chain supply.
func (s *TokenStore) UpdateSupply(_ context.Context, tokenID int64, supply uint64, updatedAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.byID[tokenID]
	if !exists {
		return storage.ErrNotFound
	}

	t.TotalSupply = supply
	t.UpdatedAt = updatedAtMs
	return nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
