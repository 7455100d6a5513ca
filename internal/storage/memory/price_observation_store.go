package memory

import (
	"context"
	"sort"
	"sync"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// PriceObservationStore is an in-memory implementation of
// storage.PriceObservationStore.
type PriceObservationStore struct {
	mu   sync.RWMutex
	data map[int64][]*domain.PriceObservation // keyed by token_id
}

// NewPriceObservationStore creates a new in-memory observation store.
func NewPriceObservationStore() *PriceObservationStore {
	return &PriceObservationStore{
		data: make(map[int64][]*domain.PriceObservation),
	}
}

// Insert adds an observation. Duplicates are tolerated.
func (s *PriceObservationStore) Insert(_ context.Context, o *domain.PriceObservation) error {
	if o == nil || o.TokenID <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *o
	s.data[o.TokenID] = append(s.data[o.TokenID], &copy)
	return nil
}

// GetRecent retrieves observations for a token at or after sinceMs,
// ordered by timestamp ASC.
func (s *PriceObservationStore) GetRecent(_ context.Context, tokenID int64, sinceMs int64) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data[tokenID] {
		if o.TimestampMs >= sinceMs {
			copy := *o
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)
