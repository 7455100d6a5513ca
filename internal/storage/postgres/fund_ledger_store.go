package postgres

import (
	"context"
	"fmt"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// FundLedgerStore implements storage.FundLedgerStore using PostgreSQL.
type FundLedgerStore struct {
	pool *Pool
}

// NewFundLedgerStore creates a new FundLedgerStore.
func NewFundLedgerStore(pool *Pool) *FundLedgerStore {
	return &FundLedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FundLedgerStore = (*FundLedgerStore)(nil)

// Credit adds amount to an entity's running total, creating the entry
// if absent. The upsert keeps the increment atomic under concurrency.
func (s *FundLedgerStore) Credit(ctx context.Context, entityID string, amount int64, updatedAtMs int64) error {
	if entityID == "" || amount < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO fund_ledger (entity_id, total, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id) DO UPDATE
		SET total = fund_ledger.total + EXCLUDED.total,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, entityID, amount, updatedAtMs); err != nil {
		return fmt.Errorf("credit fund ledger: %w", err)
	}
	return nil
}

// GetByEntity retrieves an entity's entry.
func (s *FundLedgerStore) GetByEntity(ctx context.Context, entityID string) (*domain.FundLedgerEntry, error) {
	query := `SELECT entity_id, total, updated_at FROM fund_ledger WHERE entity_id = $1`

	var e domain.FundLedgerEntry
	err := s.pool.QueryRow(ctx, query, entityID).Scan(&e.EntityID, &e.Total, &e.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fund ledger entry: %w", err)
	}
	return &e, nil
}

// SumAll returns the ledger-wide total in micro-USD.
func (s *FundLedgerStore) SumAll(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM fund_ledger`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum fund ledger: %w", err)
	}
	return total, nil
}
