package clickhouse

import (
	"context"
	"fmt"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// PriceObservationStore implements storage.PriceObservationStore using
// ClickHouse. Observations are append-only analytics data; MergeTree
// does not enforce uniqueness and duplicates are tolerated by contract.
type PriceObservationStore struct {
	conn *Conn
}

// NewPriceObservationStore creates a new PriceObservationStore.
func NewPriceObservationStore(conn *Conn) *PriceObservationStore {
	return &PriceObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)

// Insert adds an observation.
func (s *PriceObservationStore) Insert(ctx context.Context, o *domain.PriceObservation) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_observations (
			token_id, timestamp_ms, price_per_unit, supply, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		o.TokenID, uint64(o.TimestampMs), o.PricePerUnit, o.Supply, o.Source,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRecent retrieves observations for a token at or after sinceMs,
// ordered by timestamp ASC.
func (s *PriceObservationStore) GetRecent(ctx context.Context, tokenID int64, sinceMs int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT token_id, timestamp_ms, price_per_unit, supply, source
		FROM price_observations
		WHERE token_id = ? AND timestamp_ms >= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID, uint64(sinceMs))
	if err != nil {
		return nil, fmt.Errorf("query recent observations: %w", err)
	}
	defer rows.Close()

	var observations []*domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		var timestampMs uint64

		err := rows.Scan(&o.TokenID, &timestampMs, &o.PricePerUnit, &o.Supply, &o.Source)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		o.TimestampMs = int64(timestampMs)
		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return observations, nil
}
